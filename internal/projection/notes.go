package projection

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/pkg/schema"
)

// Note is a recorded agent note. CreatedAt is stamped from the originating
// event's commit timestamp, never the rebuild clock, so replays are
// reproducible.
type Note struct {
	AgentID        string   `json:"agent_id"`
	Category       string   `json:"category"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Tags           []string `json:"tags"`
	RelatedFile    string   `json:"related_file,omitempty"`
	RelatedFeature string   `json:"related_feature,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// NotesState holds every note in a workflow plus positional indexes into
// Notes by category, author, and tag. Index slices hold positions in
// append order; a tag repeated on one note is indexed once per occurrence.
type NotesState struct {
	Notes      []Note           `json:"notes"`
	ByCategory map[string][]int `json:"by_category"`
	ByAgent    map[string][]int `json:"by_agent"`
	ByTag      map[string][]int `json:"by_tag"`
}

func (s NotesState) cloneIndexes() NotesState {
	s.Notes = slices.Clone(s.Notes)
	s.ByCategory = cloneIndex(s.ByCategory)
	s.ByAgent = cloneIndex(s.ByAgent)
	s.ByTag = cloneIndex(s.ByTag)
	return s
}

func cloneIndex(m map[string][]int) map[string][]int {
	out := make(map[string][]int, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// NotesBuilder folds note events into a NotesState. Message events are
// deliberately ignored.
type NotesBuilder struct{}

func NewNotesBuilder() *NotesBuilder { return &NotesBuilder{} }

func (b *NotesBuilder) Name() string { return "notes" }

func (b *NotesBuilder) InitialState() NotesState {
	return NotesState{
		ByCategory: map[string][]int{},
		ByAgent:    map[string][]int{},
		ByTag:      map[string][]int{},
	}
}

func (b *NotesBuilder) Handlers() map[string]ApplyFunc[NotesState] {
	h := map[string]ApplyFunc[NotesState]{
		schema.EventMessageSent:         Identity[NotesState],
		schema.EventMessageAcknowledged: Identity[NotesState],
		schema.EventMessageCompleted:    Identity[NotesState],
	}
	for _, category := range schema.NoteCategories {
		h[schema.NoteEventType(category)] = applyNote(category)
	}
	return h
}

func applyNote(category string) ApplyFunc[NotesState] {
	return func(e *store.Event, state NotesState) NotesState {
		var p schema.NotePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return state
		}
		// agent_id, title, and content are required; a note missing any
		// of them is dropped rather than indexed half-formed.
		if p.AgentID == "" || p.Title == "" || p.Content == "" {
			return state
		}

		tags := slices.Clone(p.Tags)
		if tags == nil {
			tags = []string{}
		}

		out := state.cloneIndexes()
		pos := len(out.Notes)
		out.Notes = append(out.Notes, Note{
			AgentID:        p.AgentID,
			Category:       category,
			Title:          p.Title,
			Content:        p.Content,
			Tags:           tags,
			RelatedFile:    p.RelatedFile,
			RelatedFeature: p.RelatedFeature,
			CreatedAt:      e.Timestamp.UTC().Format(time.RFC3339),
		})
		out.ByCategory[category] = append(out.ByCategory[category], pos)
		out.ByAgent[p.AgentID] = append(out.ByAgent[p.AgentID], pos)
		for _, tag := range tags {
			out.ByTag[tag] = append(out.ByTag[tag], pos)
		}
		return out
	}
}

// NotesInCategory returns the notes of one category in append order.
func NotesInCategory(state NotesState, category string) []Note {
	return notesAt(state, state.ByCategory[category])
}

// NotesByAgent returns the notes authored by one agent in append order.
func NotesByAgent(state NotesState, agentID string) []Note {
	return notesAt(state, state.ByAgent[agentID])
}

// NotesWithTag returns the notes carrying a tag in append order.
func NotesWithTag(state NotesState, tag string) []Note {
	return notesAt(state, state.ByTag[tag])
}

func notesAt(state NotesState, positions []int) []Note {
	var notes []Note
	for _, pos := range positions {
		if pos >= 0 && pos < len(state.Notes) {
			notes = append(notes, state.Notes[pos])
		}
	}
	return notes
}
