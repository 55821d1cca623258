package panel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/internal/streaming"
)

const defaultBacklog = 50

// handleSSEGlobal streams all events via Server-Sent Events, preceded by a
// recent-events backlog.
func (s *PanelServer) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	backlog, err := s.deps.Log.RecentEvents(r.Context(), queryInt(r, "backlog", defaultBacklog))
	if err != nil {
		writeCourierError(w, err)
		return
	}
	// RecentEvents is newest-first; the stream is chronological.
	slices.Reverse(backlog)
	s.serveSSE(w, r, streaming.EventFilter{}, backlog)
}

// handleSSEWorkflow streams events for a specific workflow, preceded by the
// workflow's most recent events.
func (s *PanelServer) handleSSEWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")

	backlog, err := s.deps.Log.GetEvents(r.Context(), workflowID, store.EventQuery{
		Order: store.OrderDesc,
		Limit: queryInt(r, "backlog", defaultBacklog),
	})
	if err != nil {
		writeCourierError(w, err)
		return
	}
	slices.Reverse(backlog)
	s.serveSSE(w, r, streaming.EventFilter{WorkflowID: workflowID}, backlog)
}

// serveSSE is the common SSE implementation: optional expression filter,
// backlog replay, then live tail. A malformed filter is rejected up front.
func (s *PanelServer) serveSSE(w http.ResponseWriter, r *http.Request, f streaming.EventFilter, backlog []*store.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	expression := r.URL.Query().Get("filter")
	var match func(streaming.StreamEvent) bool
	if expression != "" && s.deps.Matcher != nil {
		if err := s.deps.Matcher.Check(expression); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid filter: %v", err))
			return
		}
		// Events the filter errors on are dropped, not fatal to the stream.
		match = func(event streaming.StreamEvent) bool {
			matched, err := s.deps.Matcher.Match(r.Context(), expression, event.Doc())
			return err == nil && matched
		}
		f.Where = match
	}

	// Subscribe before replaying the backlog so no commit falls between the
	// two. A backlog event may repeat on the live channel; clients dedupe by
	// (workflow_id, sequence). The expression filter rides on the
	// subscription, so non-matching events never reach the channel.
	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), f)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for _, e := range backlog {
		event := streaming.StreamEvent{
			WorkflowID: e.WorkflowID,
			EventType:  e.Type,
			AgentID:    e.AgentID,
			Sequence:   e.Sequence,
			Timestamp:  e.Timestamp,
			Payload:    e.Payload,
		}
		if match != nil && !match(event) {
			continue
		}
		writeFrame(w, flusher, event)
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeFrame(w, flusher, event)
		}
	}
}

// writeFrame emits one SSE frame.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, event streaming.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
