package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/courierhq/courier/internal/projection"
	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/pkg/schema"
)

// --- Producer tools ---

// handleSend appends an agent.message.sent event.
func (s *CourierServer) handleSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	fromAgent, err := req.RequireString("from_agent")
	if err != nil {
		return mcp.NewToolResultError("from_agent is required"), nil
	}
	toAgent, err := req.RequireString("to_agent")
	if err != nil {
		return mcp.NewToolResultError("to_agent is required"), nil
	}

	priority := schema.Priority(req.GetString("priority", string(schema.PriorityNormal)))
	if !priority.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid priority %q", priority)), nil
	}

	if regErr := s.ensureAgent(ctx, fromAgent); regErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register agent: %v", regErr)), nil
	}
	s.captureSession(ctx, fromAgent)

	now := time.Now().UTC()
	messageID := uuid.New().String()
	payload := schema.MessageSentPayload{
		EventID: uuid.New().String(),
		Message: &schema.AgentMessage{
			MessageID: messageID,
			FromAgent: fromAgent,
			ToAgent:   toAgent,
			Subject:   req.GetString("subject", ""),
			Body:      req.GetString("body", ""),
			Priority:  priority,
			CreatedAt: now,
		},
		SentAt: now,
	}

	if result := s.appendEvent(ctx, workflowID, schema.EventMessageSent, fromAgent, now, payload); result != nil {
		return result, nil
	}
	return marshalResult(map[string]any{
		"ok":          true,
		"workflow_id": workflowID,
		"message_id":  messageID,
	})
}

// handleAck appends an agent.message.acknowledged event.
func (s *CourierServer) handleAck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	messageID, err := req.RequireString("message_id")
	if err != nil {
		return mcp.NewToolResultError("message_id is required"), nil
	}
	acknowledgedBy, err := req.RequireString("acknowledged_by")
	if err != nil {
		return mcp.NewToolResultError("acknowledged_by is required"), nil
	}

	if regErr := s.ensureAgent(ctx, acknowledgedBy); regErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register agent: %v", regErr)), nil
	}
	s.captureSession(ctx, acknowledgedBy)

	now := time.Now().UTC()
	payload := schema.MessageAckPayload{
		CorrelationID:  messageID,
		AcknowledgedBy: acknowledgedBy,
		AcknowledgedAt: now,
	}

	if result := s.appendEvent(ctx, workflowID, schema.EventMessageAcknowledged, acknowledgedBy, now, payload); result != nil {
		return result, nil
	}
	return marshalResult(map[string]any{
		"ok":          true,
		"workflow_id": workflowID,
		"message_id":  messageID,
	})
}

// handleComplete appends an agent.message.completed event.
func (s *CourierServer) handleComplete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	messageID, err := req.RequireString("message_id")
	if err != nil {
		return mcp.NewToolResultError("message_id is required"), nil
	}

	now := time.Now().UTC()
	payload := schema.MessageCompletedPayload{
		CorrelationID: messageID,
		Result:        req.GetString("result", ""),
		Success:       req.GetBool("success", true),
		CompletedAt:   now,
	}

	if result := s.appendEvent(ctx, workflowID, schema.EventMessageCompleted, "", now, payload); result != nil {
		return result, nil
	}
	return marshalResult(map[string]any{
		"ok":          true,
		"workflow_id": workflowID,
		"message_id":  messageID,
	})
}

// handleNote appends an agent.note.<category> event.
func (s *CourierServer) handleNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError("category is required"), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title is required"), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content is required"), nil
	}

	eventType := schema.NoteEventType(category)
	if !schema.KnownEventType(eventType) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown note category %q", category)), nil
	}

	if regErr := s.ensureAgent(ctx, agentID); regErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register agent: %v", regErr)), nil
	}
	s.captureSession(ctx, agentID)

	now := time.Now().UTC()
	payload := schema.NotePayload{
		AgentID:        agentID,
		Title:          title,
		Content:        content,
		Tags:           extractStringSlice(req.GetArguments(), "tags"),
		RelatedFile:    req.GetString("related_file", ""),
		RelatedFeature: req.GetString("related_feature", ""),
	}

	if result := s.appendEvent(ctx, workflowID, eventType, agentID, now, payload); result != nil {
		return result, nil
	}
	return marshalResult(map[string]any{
		"ok":          true,
		"workflow_id": workflowID,
		"category":    category,
	})
}

// --- Mailbox tools ---

// handleInbox rebuilds an agent's mailbox and returns the inbox.
func (s *CourierServer) handleInbox(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, agentID, result := s.mailboxArgs(req)
	if result != nil {
		return result, nil
	}
	s.captureSession(ctx, agentID)

	state, err := projection.RebuildFromSnapshot(ctx, s.log, workflowID, projection.NewMailboxBuilder(agentID))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rebuild failed: %v", err)), nil
	}

	inbox := state.Inbox
	if req.GetBool("unread_only", false) {
		inbox = projection.UnreadInbox(state)
	}
	return marshalResult(map[string]any{
		"workflow_id": workflowID,
		"agent_id":    agentID,
		"inbox":       inbox,
	})
}

// handleOutbox rebuilds an agent's mailbox and returns the outbox.
func (s *CourierServer) handleOutbox(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, agentID, result := s.mailboxArgs(req)
	if result != nil {
		return result, nil
	}
	s.captureSession(ctx, agentID)

	state, err := projection.RebuildFromSnapshot(ctx, s.log, workflowID, projection.NewMailboxBuilder(agentID))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rebuild failed: %v", err)), nil
	}

	outbox := state.Outbox
	if req.GetBool("pending_only", false) {
		outbox = projection.PendingOutbox(state)
	}
	return marshalResult(map[string]any{
		"workflow_id": workflowID,
		"agent_id":    agentID,
		"outbox":      outbox,
	})
}

// handleConversation returns completed exchanges ordered by completion time,
// optionally narrowed to one counterparty.
func (s *CourierServer) handleConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, agentID, result := s.mailboxArgs(req)
	if result != nil {
		return result, nil
	}
	withAgent := req.GetString("with_agent", "")

	state, rebuildErr := projection.RebuildFromSnapshot(ctx, s.log, workflowID, projection.NewMailboxBuilder(agentID))
	if rebuildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rebuild failed: %v", rebuildErr)), nil
	}

	return marshalResult(map[string]any{
		"workflow_id":  workflowID,
		"agent_id":     agentID,
		"with_agent":   withAgent,
		"conversation": projection.Conversation(state, withAgent),
	})
}

// handleNotes rebuilds the notes projection with optional narrowing.
func (s *CourierServer) handleNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	state, rebuildErr := projection.RebuildFromSnapshot(ctx, s.log, workflowID, projection.NewNotesBuilder())
	if rebuildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rebuild failed: %v", rebuildErr)), nil
	}

	notes := state.Notes
	switch {
	case req.GetString("category", "") != "":
		notes = projection.NotesInCategory(state, req.GetString("category", ""))
	case req.GetString("agent_id", "") != "":
		notes = projection.NotesByAgent(state, req.GetString("agent_id", ""))
	case req.GetString("tag", "") != "":
		notes = projection.NotesWithTag(state, req.GetString("tag", ""))
	}
	if notes == nil {
		notes = []projection.Note{}
	}

	return marshalResult(map[string]any{
		"workflow_id": workflowID,
		"notes":       notes,
	})
}

// --- Query tool ---

// handleQuery lists workflows, events, or agents based on filters.
func (s *CourierServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	queryFilter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "workflows":
		return s.queryWorkflows(ctx)
	case "events":
		return s.queryEvents(ctx, queryFilter)
	case "agents":
		return s.queryAgents(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

func (s *CourierServer) queryWorkflows(ctx context.Context) (*mcp.CallToolResult, error) {
	workflowIDs, err := s.log.ListWorkflowIDs(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"workflows": workflowIDs})
}

func (s *CourierServer) queryEvents(ctx context.Context, queryFilter map[string]any) (*mcp.CallToolResult, error) {
	workflowID, _ := queryFilter["workflow_id"].(string)

	var events []*store.Event
	var err error
	if workflowID == "" {
		// No workflow scope: newest events across all workflows.
		events, err = s.log.RecentEvents(ctx, extractInt(queryFilter, "limit", 100))
	} else {
		q := store.EventQuery{
			Limit:  extractInt(queryFilter, "limit", 0),
			Offset: extractInt(queryFilter, "offset", 0),
			Since:  int64(extractInt(queryFilter, "since", 0)),
		}
		q.Type, _ = queryFilter["event_type"].(string)
		q.Order, _ = queryFilter["order"].(string)
		events, err = s.log.GetEvents(ctx, workflowID, q)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	// Optional expression filter, same language surface as the panel SSE.
	if expression, ok := queryFilter["expression"].(string); ok && expression != "" && s.matcher != nil {
		if err := s.matcher.Check(expression); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid expression: %v", err)), nil
		}
		filtered := events[:0:0]
		for _, e := range events {
			matched, matchErr := s.matcher.Match(ctx, expression, eventDoc(e))
			if matchErr == nil && matched {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	return marshalResult(map[string]any{"events": events})
}

func (s *CourierServer) queryAgents(ctx context.Context) (*mcp.CallToolResult, error) {
	agents, err := s.log.Store().ListAgents(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"agents": agents})
}

// --- Internal helpers ---

// appendEvent validates a payload and appends it to the log. Returns a
// non-nil error result when the append path refuses the event.
func (s *CourierServer) appendEvent(ctx context.Context, workflowID, eventType, agentID string, at time.Time, payload any) *mcp.CallToolResult {
	raw, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode payload: %v", err))
	}
	if s.validator != nil {
		if err := s.validator.ValidatePayload(eventType, raw); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid payload: %v", err))
		}
	}
	if !s.log.Append(ctx, &store.Event{
		WorkflowID: workflowID,
		Type:       eventType,
		AgentID:    agentID,
		Timestamp:  at,
		Payload:    raw,
	}) {
		return mcp.NewToolResultError("failed to append event")
	}
	return nil
}

// mailboxArgs extracts the workflow_id/agent_id pair shared by the mailbox
// tools.
func (s *CourierServer) mailboxArgs(req mcp.CallToolRequest) (workflowID, agentID string, result *mcp.CallToolResult) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return "", "", mcp.NewToolResultError("workflow_id is required")
	}
	agentID, err = req.RequireString("agent_id")
	if err != nil {
		return "", "", mcp.NewToolResultError("agent_id is required")
	}
	return workflowID, agentID, nil
}

// ensureAgent creates an agent record if it doesn't already exist.
func (s *CourierServer) ensureAgent(ctx context.Context, agentID string) error {
	agentStore := s.log.Store()
	_, err := agentStore.GetAgent(ctx, agentID)
	if err == nil {
		// Agent exists, update last seen.
		return agentStore.UpdateAgentSeen(ctx, agentID)
	}

	// Register new agent.
	now := time.Now().UTC()
	return agentStore.RegisterAgent(ctx, &store.Agent{
		ID:        agentID,
		Name:      agentID,
		Type:      "llm",
		CreatedAt: now,
	})
}

// captureSession maps the agent ID to its current MCP session for notifications.
func (s *CourierServer) captureSession(ctx context.Context, agentID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(agentID, session.SessionID())
	}
}

// eventDoc builds the flat filter document for a stored event.
func eventDoc(e *store.Event) map[string]any {
	var payload any
	if len(e.Payload) > 0 {
		_ = json.Unmarshal(e.Payload, &payload)
	}
	return map[string]any{
		"workflow_id": e.WorkflowID,
		"event_type":  e.Type,
		"agent_id":    e.AgentID,
		"sequence":    e.Sequence,
		"timestamp":   e.Timestamp.Format(time.RFC3339Nano),
		"payload":     payload,
	}
}

// extractInt safely extracts an integer from a filter map.
func extractInt(queryFilter map[string]any, key string, defaultVal int) int {
	if queryFilter == nil {
		return defaultVal
	}
	v, ok := queryFilter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// extractStringSlice pulls a []string out of raw tool arguments.
func extractStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
