package panel

import (
	"net/http"

	"github.com/courierhq/courier/internal/projection"
	"github.com/courierhq/courier/internal/store"
)

// handleWorkflows lists the distinct workflow IDs present in the log.
func (s *PanelServer) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	ids, err := s.deps.Log.ListWorkflowIDs(r.Context())
	if err != nil {
		writeCourierError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": ids})
}

// handleWorkflowEvents returns a workflow's events with the log's filtering
// and pagination semantics (type, order, limit, offset, since).
func (s *PanelServer) handleWorkflowEvents(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")

	q := store.EventQuery{
		Type:  r.URL.Query().Get("type"),
		Order: r.URL.Query().Get("order"),
		Since: queryInt64(r, "since", 0),
	}
	if limit := queryInt(r, "limit", 0); limit > 0 {
		q.Limit = limit
	}
	if offset := queryInt(r, "offset", 0); offset > 0 {
		q.Offset = offset
	}

	events, err := s.deps.Log.GetEvents(r.Context(), workflowID, q)
	if err != nil {
		writeCourierError(w, err)
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": workflowID,
		"events":      events,
	})
}

// handleMailbox rebuilds one agent's mailbox projection for a workflow.
func (s *PanelServer) handleMailbox(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	agentID := r.PathValue("agent")

	state, err := projection.RebuildFromSnapshot(r.Context(), s.deps.Log, workflowID,
		projection.NewMailboxBuilder(agentID))
	if err != nil {
		writeCourierError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id":    workflowID,
		"mailbox":        state,
		"unread_inbox":   projection.UnreadInbox(state),
		"pending_outbox": projection.PendingOutbox(state),
	})
}

// handleNotes rebuilds the notes projection, optionally narrowed by
// category, agent, or tag.
func (s *PanelServer) handleNotes(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")

	state, err := projection.RebuildFromSnapshot(r.Context(), s.deps.Log, workflowID,
		projection.NewNotesBuilder())
	if err != nil {
		writeCourierError(w, err)
		return
	}

	notes := state.Notes
	switch {
	case r.URL.Query().Get("category") != "":
		notes = projection.NotesInCategory(state, r.URL.Query().Get("category"))
	case r.URL.Query().Get("agent") != "":
		notes = projection.NotesByAgent(state, r.URL.Query().Get("agent"))
	case r.URL.Query().Get("tag") != "":
		notes = projection.NotesWithTag(state, r.URL.Query().Get("tag"))
	}
	if notes == nil {
		notes = []projection.Note{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": workflowID,
		"notes":       notes,
	})
}

// handleRecentEvents returns the newest events across all workflows.
func (s *PanelServer) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Log.RecentEvents(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeCourierError(w, err)
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleAgents lists registered agents.
func (s *PanelServer) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Log.Store().ListAgents(r.Context())
	if err != nil {
		writeCourierError(w, err)
		return
	}
	if agents == nil {
		agents = []*store.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}
