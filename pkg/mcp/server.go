package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/courierhq/courier/internal/filter"
	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/internal/validation"
)

// CourierServerDeps holds the dependencies for creating a CourierServer.
type CourierServerDeps struct {
	Log       *store.EventLog
	Validator validation.Validator
	Matcher   *filter.Matcher
	Logger    *slog.Logger
}

// CourierServer wraps an MCP server with courier-specific tool handlers.
type CourierServer struct {
	log       *store.EventLog
	validator validation.Validator
	matcher   *filter.Matcher
	logger    *slog.Logger
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewCourierServer creates a new CourierServer with all 9 tools registered.
func NewCourierServer(deps CourierServerDeps) *CourierServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &CourierServer{
		log:       deps.Log,
		validator: deps.Validator,
		matcher:   deps.Matcher,
		logger:    logger,
		sessions:  NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"courier",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Courier is a shared coordination log for coding agents. Use courier.send to message another agent, courier.ack and courier.complete to progress a message, courier.note to record findings, courier.inbox/outbox/conversation to read your mailbox, courier.notes to browse recorded notes, and courier.query to inspect the raw event log."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *CourierServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *CourierServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the agent-to-session registry for notification push.
func (s *CourierServer) Sessions() *SessionRegistry {
	return s.sessions
}

// tools returns the 9 registered MCP tools as ServerTool entries.
func (s *CourierServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: sendTool(), Handler: s.handleSend},
		{Tool: ackTool(), Handler: s.handleAck},
		{Tool: completeTool(), Handler: s.handleComplete},
		{Tool: noteTool(), Handler: s.handleNote},
		{Tool: inboxTool(), Handler: s.handleInbox},
		{Tool: outboxTool(), Handler: s.handleOutbox},
		{Tool: conversationTool(), Handler: s.handleConversation},
		{Tool: notesTool(), Handler: s.handleNotes},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func sendTool() mcp.Tool {
	return mcp.NewTool("courier.send",
		mcp.WithDescription("Send a message to another agent in a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow the message belongs to")),
		mcp.WithString("from_agent", mcp.Required(), mcp.Description("Sending agent ID")),
		mcp.WithString("to_agent", mcp.Required(), mcp.Description("Receiving agent ID")),
		mcp.WithString("subject", mcp.Description("Short message subject")),
		mcp.WithString("body", mcp.Description("Message body")),
		mcp.WithString("priority",
			mcp.Enum("low", "normal", "high", "urgent"),
			mcp.Description("Message priority (default: normal)"),
		),
	)
}

func ackTool() mcp.Tool {
	return mcp.NewTool("courier.ack",
		mcp.WithDescription("Acknowledge receipt of a message"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow the message belongs to")),
		mcp.WithString("message_id", mcp.Required(), mcp.Description("ID of the message to acknowledge")),
		mcp.WithString("acknowledged_by", mcp.Required(), mcp.Description("Acknowledging agent ID")),
	)
}

func completeTool() mcp.Tool {
	return mcp.NewTool("courier.complete",
		mcp.WithDescription("Mark a message's requested work as completed"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow the message belongs to")),
		mcp.WithString("message_id", mcp.Required(), mcp.Description("ID of the completed message")),
		mcp.WithString("result", mcp.Description("Outcome summary")),
		mcp.WithBoolean("success", mcp.Description("Whether the work succeeded (default: true)")),
	)
}

func noteTool() mcp.Tool {
	return mcp.NewTool("courier.note",
		mcp.WithDescription("Record a note in the workflow's shared log"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow the note belongs to")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Authoring agent ID")),
		mcp.WithString("category", mcp.Required(),
			mcp.Enum("observation", "question", "idea", "decision", "learning",
				"reflection", "warning", "accomplishment", "context", "todo"),
			mcp.Description("Note category"),
		),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content")),
		mcp.WithArray("tags", mcp.Description("Optional tags")),
		mcp.WithString("related_file", mcp.Description("File path the note refers to")),
		mcp.WithString("related_feature", mcp.Description("Feature the note refers to")),
	)
}

func inboxTool() mcp.Tool {
	return mcp.NewTool("courier.inbox",
		mcp.WithDescription("Read an agent's inbox for a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow to inspect")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent whose inbox to read")),
		mcp.WithBoolean("unread_only", mcp.Description("Only unacknowledged messages, priority-ordered (default: false)")),
	)
}

func outboxTool() mcp.Tool {
	return mcp.NewTool("courier.outbox",
		mcp.WithDescription("Read an agent's outbox for a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow to inspect")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent whose outbox to read")),
		mcp.WithBoolean("pending_only", mcp.Description("Only messages not yet completed (default: false)")),
	)
}

func conversationTool() mcp.Tool {
	return mcp.NewTool("courier.conversation",
		mcp.WithDescription("Read completed exchanges ordered by completion time"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow to inspect")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent whose view to rebuild")),
		mcp.WithString("with_agent", mcp.Description("Counterparty agent ID; omit for the full history")),
	)
}

func notesTool() mcp.Tool {
	return mcp.NewTool("courier.notes",
		mcp.WithDescription("Browse a workflow's recorded notes"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow to inspect")),
		mcp.WithString("category", mcp.Description("Only notes of this category")),
		mcp.WithString("agent_id", mcp.Description("Only notes by this agent")),
		mcp.WithString("tag", mcp.Description("Only notes carrying this tag")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("courier.query",
		mcp.WithDescription("Inspect the raw event log"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "events", "agents"),
			mcp.Description("Resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Resource-specific filters: workflow_id, event_type, order, limit, offset, since, expression")),
	)
}
