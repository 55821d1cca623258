package projection

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/pkg/schema"
)

func newTestLog(t *testing.T) *store.EventLog {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return store.NewEventLog(s, slog.Default())
}

func seedHandshake(t *testing.T, log *store.EventLog, workflowID string) {
	t.Helper()
	ctx := context.Background()
	events := []*store.Event{
		sentEvent(t, 0, "planner", "coder", "implement parser", schema.PriorityHigh),
		ackEvent(t, 0, "msg-implement parser", "coder"),
		completedEvent(t, 0, "msg-implement parser", "parser done", true),
		noteEvent(t, 0, "decision", schema.NotePayload{
			AgentID: "coder", Title: "recursive descent", Content: "simpler to extend",
		}),
	}
	for _, e := range events {
		e.WorkflowID = workflowID
		e.Sequence = 0
		require.True(t, log.Append(ctx, e))
	}
}

func TestRebuildMailboxFromStore(t *testing.T) {
	log := newTestLog(t)
	seedHandshake(t, log, "wf-rebuild")

	state, err := Rebuild(context.Background(), log, "wf-rebuild", NewMailboxBuilder("coder"))
	require.NoError(t, err)
	require.Len(t, state.Inbox, 1)
	assert.True(t, state.Inbox[0].Acknowledged)
}

func TestRebuildNotesFromStore(t *testing.T) {
	log := newTestLog(t)
	seedHandshake(t, log, "wf-notes")

	state, err := Rebuild(context.Background(), log, "wf-notes", NewNotesBuilder())
	require.NoError(t, err)
	require.Len(t, state.Notes, 1)
	assert.Equal(t, "recursive descent", state.Notes[0].Title)
}

func TestRebuildEmptyWorkflowID(t *testing.T) {
	log := newTestLog(t)
	_, err := Rebuild(context.Background(), log, "", NewNotesBuilder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to rebuild projection")
}

func TestRebuildUnknownWorkflowYieldsInitialState(t *testing.T) {
	log := newTestLog(t)
	b := NewMailboxBuilder("coder")
	state, err := Rebuild(context.Background(), log, "wf-none", b)
	require.NoError(t, err)
	assert.Equal(t, b.InitialState(), state)
}

func TestSnapshotNowAndRebuildFromSnapshot(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()
	seedHandshake(t, log, "wf-snap")

	b := NewMailboxBuilder("planner")
	snap, err := SnapshotNow(ctx, log, "wf-snap", b)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(4), snap.EventSequence)

	// Events after the snapshot are folded on top of the seeded state.
	follow := sentEvent(t, 0, "planner", "coder", "write tests", schema.PriorityNormal)
	follow.WorkflowID = "wf-snap"
	follow.Sequence = 0
	require.True(t, log.Append(ctx, follow))

	fromSnap, err := RebuildFromSnapshot(ctx, log, "wf-snap", b)
	require.NoError(t, err)
	full, err := Rebuild(ctx, log, "wf-snap", b)
	require.NoError(t, err)
	assert.Equal(t, full, fromSnap)
	assert.Len(t, fromSnap.Outbox, 2)
}

func TestSnapshotNowEmptyWorkflow(t *testing.T) {
	log := newTestLog(t)
	snap, err := SnapshotNow(context.Background(), log, "wf-empty", NewNotesBuilder())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRebuildFromCorruptSnapshotFallsBackToReplay(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()
	seedHandshake(t, log, "wf-corrupt")

	require.True(t, log.SaveSnapshot(ctx, &store.Snapshot{
		WorkflowID:    "wf-corrupt",
		State:         []byte("not a snapshot"),
		EventSequence: 2,
	}))

	state, err := RebuildFromSnapshot(ctx, log, "wf-corrupt", NewNotesBuilder())
	require.NoError(t, err)
	assert.Len(t, state.Notes, 1)
}

func TestRebuildFromOtherProjectionSnapshotFallsBackToReplay(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()
	seedHandshake(t, log, "wf-mixed")

	// Snapshot the notes projection; a mailbox rebuild must not fold on it.
	snap, err := SnapshotNow(ctx, log, "wf-mixed", NewNotesBuilder())
	require.NoError(t, err)
	require.NotNil(t, snap)

	b := NewMailboxBuilder("coder")
	fromSnap, err := RebuildFromSnapshot(ctx, log, "wf-mixed", b)
	require.NoError(t, err)
	full, err := Rebuild(ctx, log, "wf-mixed", b)
	require.NoError(t, err)
	assert.Equal(t, full, fromSnap)
	assert.Len(t, fromSnap.Inbox, 1)
}

func TestSnapshotStateRoundTripsThroughCodec(t *testing.T) {
	b := NewNotesBuilder()
	state := Fold(b, []*store.Event{
		noteEvent(t, 1, "learning", schema.NotePayload{
			AgentID: "a", Title: "t", Content: "c", Tags: []string{"x", "y"},
		}),
	}, b.InitialState())

	encoded, err := store.EncodeSnapshotState(state)
	require.NoError(t, err)

	var decoded NotesState
	require.NoError(t, store.DecodeSnapshotState(encoded, &decoded))
	assert.Equal(t, state, decoded)
}
