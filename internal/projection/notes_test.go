package projection

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/pkg/schema"
)

func noteEvent(t *testing.T, seq int64, category string, p schema.NotePayload) *store.Event {
	t.Helper()
	return &store.Event{
		WorkflowID: "wf-1",
		Type:       schema.NoteEventType(category),
		AgentID:    p.AgentID,
		Timestamp:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
		Sequence:   seq,
		Payload:    mustJSON(t, p),
	}
}

func TestNotesHandlersCoverAllKnownTypes(t *testing.T) {
	handlers := NewNotesBuilder().Handlers()
	for _, eventType := range schema.KnownEventTypes {
		assert.Contains(t, handlers, eventType)
	}
	assert.Len(t, handlers, len(schema.KnownEventTypes))
}

func TestNotesAppendAndIndex(t *testing.T) {
	b := NewNotesBuilder()
	state := Fold(b, []*store.Event{
		noteEvent(t, 1, "decision", schema.NotePayload{
			AgentID: "a", Title: "use sqlite", Content: "single writer fits",
			Tags: []string{"storage", "architecture"},
		}),
		noteEvent(t, 2, "decision", schema.NotePayload{
			AgentID: "a", Title: "cbor snapshots", Content: "deterministic bytes",
			Tags: []string{"storage"},
		}),
		noteEvent(t, 3, "warning", schema.NotePayload{
			AgentID: "b", Title: "flaky test", Content: "timing sensitive",
		}),
	}, b.InitialState())

	require.Len(t, state.Notes, 3)
	assert.Equal(t, []int{0, 1}, state.ByCategory["decision"])
	assert.Equal(t, []int{2}, state.ByCategory["warning"])
	assert.Equal(t, []int{0, 1}, state.ByAgent["a"])
	assert.Equal(t, []int{2}, state.ByAgent["b"])
	assert.Equal(t, []int{0, 1}, state.ByTag["storage"])
	assert.Equal(t, []int{0}, state.ByTag["architecture"])

	assert.Equal(t, "decision", state.Notes[0].Category)
	assert.Equal(t, "use sqlite", state.Notes[0].Title)
}

func TestNotesCreatedAtComesFromEventTimestamp(t *testing.T) {
	b := NewNotesBuilder()
	evt := noteEvent(t, 5, "observation", schema.NotePayload{
		AgentID: "a", Title: "t", Content: "c",
	})
	state := Fold(b, []*store.Event{evt}, b.InitialState())

	require.Len(t, state.Notes, 1)
	assert.Equal(t, evt.Timestamp.UTC().Format(time.RFC3339), state.Notes[0].CreatedAt)
}

func TestNotesMissingRequiredFieldsSkipped(t *testing.T) {
	b := NewNotesBuilder()
	state := Fold(b, []*store.Event{
		noteEvent(t, 1, "idea", schema.NotePayload{Title: "no author", Content: "c"}),
		noteEvent(t, 2, "idea", schema.NotePayload{AgentID: "a", Content: "no title"}),
		noteEvent(t, 3, "idea", schema.NotePayload{AgentID: "a", Title: "no content"}),
		noteEvent(t, 4, "idea", schema.NotePayload{AgentID: "a", Title: "ok", Content: "kept"}),
	}, b.InitialState())

	require.Len(t, state.Notes, 1)
	assert.Equal(t, "ok", state.Notes[0].Title)
	assert.Equal(t, []int{0}, state.ByCategory["idea"])
}

func TestNotesMalformedPayloadSkipped(t *testing.T) {
	b := NewNotesBuilder()
	state := Fold(b, []*store.Event{
		{WorkflowID: "wf-1", Type: schema.NoteEventType("todo"), Sequence: 1, Payload: json.RawMessage(`not json`)},
	}, b.InitialState())
	assert.Empty(t, state.Notes)
}

func TestNotesEmptyTagsLeaveTagIndexUntouched(t *testing.T) {
	b := NewNotesBuilder()
	state := Fold(b, []*store.Event{
		noteEvent(t, 1, "learning", schema.NotePayload{AgentID: "a", Title: "t", Content: "c"}),
	}, b.InitialState())

	assert.Empty(t, state.ByTag)
	assert.Equal(t, []string{}, state.Notes[0].Tags)
}

func TestNotesRepeatedTagIndexedPerOccurrence(t *testing.T) {
	b := NewNotesBuilder()
	state := Fold(b, []*store.Event{
		noteEvent(t, 1, "context", schema.NotePayload{
			AgentID: "a", Title: "t", Content: "c", Tags: []string{"db", "db"},
		}),
	}, b.InitialState())

	assert.Equal(t, []int{0, 0}, state.ByTag["db"])
}

func TestNotesAllCategoriesFold(t *testing.T) {
	b := NewNotesBuilder()
	var events []*store.Event
	for i, category := range schema.NoteCategories {
		events = append(events, noteEvent(t, int64(i+1), category, schema.NotePayload{
			AgentID: "a", Title: category, Content: "c",
		}))
	}
	state := Fold(b, events, b.InitialState())

	require.Len(t, state.Notes, len(schema.NoteCategories))
	for _, category := range schema.NoteCategories {
		assert.Len(t, state.ByCategory[category], 1)
	}
}

func TestNotesMessageEventsIgnored(t *testing.T) {
	b := NewNotesBuilder()
	state := Fold(b, []*store.Event{
		sentEvent(t, 1, "a", "b", "subject", schema.PriorityNormal),
		ackEvent(t, 2, "msg-subject", "b"),
	}, b.InitialState())
	assert.Empty(t, state.Notes)
}

func TestNotesHandlersDoNotMutateInput(t *testing.T) {
	b := NewNotesBuilder()
	base := Fold(b, []*store.Event{
		noteEvent(t, 1, "decision", schema.NotePayload{AgentID: "a", Title: "t", Content: "c", Tags: []string{"x"}}),
	}, b.InitialState())

	_ = Fold(b, []*store.Event{
		noteEvent(t, 2, "decision", schema.NotePayload{AgentID: "a", Title: "t2", Content: "c2", Tags: []string{"x"}}),
	}, base)

	assert.Len(t, base.Notes, 1)
	assert.Equal(t, []int{0}, base.ByCategory["decision"])
	assert.Equal(t, []int{0}, base.ByTag["x"])
}

func TestNotesQueryHelpers(t *testing.T) {
	b := NewNotesBuilder()
	state := Fold(b, []*store.Event{
		noteEvent(t, 1, "question", schema.NotePayload{AgentID: "a", Title: "q1", Content: "c", Tags: []string{"api"}}),
		noteEvent(t, 2, "decision", schema.NotePayload{AgentID: "b", Title: "d1", Content: "c", Tags: []string{"api"}}),
	}, b.InitialState())

	questions := NotesInCategory(state, "question")
	require.Len(t, questions, 1)
	assert.Equal(t, "q1", questions[0].Title)

	byB := NotesByAgent(state, "b")
	require.Len(t, byB, 1)
	assert.Equal(t, "d1", byB[0].Title)

	tagged := NotesWithTag(state, "api")
	assert.Len(t, tagged, 2)

	assert.Empty(t, NotesInCategory(state, "warning"))
}
