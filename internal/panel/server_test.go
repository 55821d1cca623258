package panel

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/internal/filter"
	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/internal/streaming"
	"github.com/courierhq/courier/pkg/schema"
)

func newTestPanel(t *testing.T) (*store.EventLog, *httptest.Server) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	hub := streaming.NewMemoryHub()
	log := store.NewEventLog(s, slog.Default()).WithHub(hub)

	matcher, err := filter.NewMatcher()
	require.NoError(t, err)

	srv := httptest.NewServer(NewPanelServer(PanelDeps{
		Log:     log,
		Hub:     hub,
		Matcher: matcher,
		Logger:  slog.Default(),
	}).Handler())
	t.Cleanup(srv.Close)
	return log, srv
}

func seedPanelEvents(t *testing.T, log *store.EventLog) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sentPayload, err := json.Marshal(schema.MessageSentPayload{
		EventID: "e1",
		Message: &schema.AgentMessage{
			MessageID: "m1",
			FromAgent: "planner",
			ToAgent:   "coder",
			Subject:   "task",
			Priority:  schema.PriorityHigh,
			CreatedAt: at,
		},
		SentAt: at,
	})
	require.NoError(t, err)
	require.True(t, log.Append(ctx, &store.Event{
		WorkflowID: "wf-1",
		Type:       schema.EventMessageSent,
		AgentID:    "planner",
		Timestamp:  at,
		Payload:    sentPayload,
	}))

	notePayload, err := json.Marshal(schema.NotePayload{
		AgentID: "coder",
		Title:   "design",
		Content: "keep it flat",
		Tags:    []string{"layout"},
	})
	require.NoError(t, err)
	require.True(t, log.Append(ctx, &store.Event{
		WorkflowID: "wf-1",
		Type:       schema.NoteEventType("decision"),
		AgentID:    "coder",
		Timestamp:  at.Add(time.Minute),
		Payload:    notePayload,
	}))

	require.True(t, log.Append(ctx, &store.Event{
		WorkflowID: "wf-2",
		Type:       schema.NoteEventType("todo"),
		AgentID:    "coder",
		Timestamp:  at.Add(2 * time.Minute),
		Payload:    notePayload,
	}))
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	_, srv := newTestPanel(t)
	var body map[string]string
	resp := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestListWorkflows(t *testing.T) {
	log, srv := newTestPanel(t)
	seedPanelEvents(t, log)

	var body struct {
		Workflows []string `json:"workflows"`
	}
	resp := getJSON(t, srv.URL+"/api/workflows", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []string{"wf-1", "wf-2"}, body.Workflows)
}

func TestWorkflowEvents(t *testing.T) {
	log, srv := newTestPanel(t)
	seedPanelEvents(t, log)

	var body struct {
		Events []*store.Event `json:"events"`
	}
	resp := getJSON(t, srv.URL+"/api/workflows/wf-1/events?order=desc&limit=1", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Events, 1)
	assert.Equal(t, int64(2), body.Events[0].Sequence)
}

func TestWorkflowEventsBadOrder(t *testing.T) {
	log, srv := newTestPanel(t)
	seedPanelEvents(t, log)

	resp := getJSON(t, srv.URL+"/api/workflows/wf-1/events?order=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMailboxEndpoint(t *testing.T) {
	log, srv := newTestPanel(t)
	seedPanelEvents(t, log)

	var body struct {
		Mailbox struct {
			Inbox []json.RawMessage `json:"inbox"`
		} `json:"mailbox"`
		UnreadInbox []json.RawMessage `json:"unread_inbox"`
	}
	resp := getJSON(t, srv.URL+"/api/workflows/wf-1/mailbox/coder", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Mailbox.Inbox, 1)
	assert.Len(t, body.UnreadInbox, 1)
}

func TestNotesEndpoint(t *testing.T) {
	log, srv := newTestPanel(t)
	seedPanelEvents(t, log)

	var body struct {
		Notes []json.RawMessage `json:"notes"`
	}
	resp := getJSON(t, srv.URL+"/api/workflows/wf-1/notes?category=decision", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Notes, 1)

	resp = getJSON(t, srv.URL+"/api/workflows/wf-1/notes?category=warning", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body.Notes)
}

func TestRecentEventsEndpoint(t *testing.T) {
	log, srv := newTestPanel(t)
	seedPanelEvents(t, log)

	var body struct {
		Events []*store.Event `json:"events"`
	}
	resp := getJSON(t, srv.URL+"/api/events/recent?limit=2", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Events, 2)
}

func TestSSERejectsBadFilter(t *testing.T) {
	log, srv := newTestPanel(t)
	seedPanelEvents(t, log)

	resp, err := http.Get(srv.URL + "/sse/events?filter=" + "cel:%20%3D%3D")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSSEWorkflowBacklog(t *testing.T) {
	log, srv := newTestPanel(t)
	seedPanelEvents(t, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/workflows/wf-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var frames []string
	for len(frames) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimSpace(strings.TrimPrefix(line, "data: ")))
		}
	}
	cancel()

	var first streaming.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(frames[0]), &first))
	assert.Equal(t, "wf-1", first.WorkflowID)
	assert.Equal(t, int64(1), first.Sequence)
}

func TestSSEGlobalWithFilterLiveEvent(t *testing.T) {
	log, srv := newTestPanel(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := srv.URL + "/sse/events?backlog=0&filter=" + "event_type%20%3D%3D%20%22agent.note.todo%22"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Give the subscription a beat to register, then publish through the log.
	time.Sleep(100 * time.Millisecond)
	seedPanelEvents(t, log)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event streaming.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &event))
		assert.Equal(t, schema.NoteEventType("todo"), event.EventType)
		assert.Equal(t, "wf-2", event.WorkflowID)
		break
	}
	cancel()
}

func TestAgentsEndpoint(t *testing.T) {
	log, srv := newTestPanel(t)
	require.NoError(t, log.Store().RegisterAgent(context.Background(), &store.Agent{
		ID: "coder", Name: "coder", Type: "llm",
	}))

	var body struct {
		Agents []*store.Agent `json:"agents"`
	}
	resp := getJSON(t, srv.URL+"/api/agents", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Agents, 1)
	assert.Equal(t, "coder", body.Agents[0].ID)
}
