package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/courierhq/courier/internal/filter"
	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/internal/streaming"
)

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Log     *store.EventLog
	Hub     streaming.EventHub
	Matcher *filter.Matcher
	Logger  *slog.Logger
}

// PanelServer serves the read-only inspection API: JSON endpoints over the
// event log and projections, plus SSE streams for live tailing.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Read API.
	mux.HandleFunc("GET /api/workflows", s.handleWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}/events", s.handleWorkflowEvents)
	mux.HandleFunc("GET /api/workflows/{id}/mailbox/{agent}", s.handleMailbox)
	mux.HandleFunc("GET /api/workflows/{id}/notes", s.handleNotes)
	mux.HandleFunc("GET /api/events/recent", s.handleRecentEvents)
	mux.HandleFunc("GET /api/agents", s.handleAgents)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/workflows/{id}", s.handleSSEWorkflow)

	return mux
}

func (s *PanelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
