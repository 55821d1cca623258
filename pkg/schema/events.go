package schema

// Event type constants for the append-only coordination log.
//
// The store itself is type-agnostic; these two families are the ones the
// shipped projection builders fold. Other event types may be appended and
// are simply skipped during rebuild.
const (
	EventMessageSent         = "agent.message.sent"
	EventMessageAcknowledged = "agent.message.acknowledged"
	EventMessageCompleted    = "agent.message.completed"

	EventNoteObservation    = "agent.note.observation"
	EventNoteQuestion       = "agent.note.question"
	EventNoteIdea           = "agent.note.idea"
	EventNoteDecision       = "agent.note.decision"
	EventNoteLearning       = "agent.note.learning"
	EventNoteReflection     = "agent.note.reflection"
	EventNoteWarning        = "agent.note.warning"
	EventNoteAccomplishment = "agent.note.accomplishment"
	EventNoteContext        = "agent.note.context"
	EventNoteTodo           = "agent.note.todo"
)

// NoteCategories enumerates the ten note categories, one-to-one with the
// agent.note.* event types.
var NoteCategories = []string{
	"observation",
	"question",
	"idea",
	"decision",
	"learning",
	"reflection",
	"warning",
	"accomplishment",
	"context",
	"todo",
}

// KnownEventTypes lists every event type the projection builders define
// behavior for. Builder handler tables must cover exactly this set.
var KnownEventTypes = []string{
	EventMessageSent,
	EventMessageAcknowledged,
	EventMessageCompleted,
	EventNoteObservation,
	EventNoteQuestion,
	EventNoteIdea,
	EventNoteDecision,
	EventNoteLearning,
	EventNoteReflection,
	EventNoteWarning,
	EventNoteAccomplishment,
	EventNoteContext,
	EventNoteTodo,
}

// KnownEventType reports whether eventType is in KnownEventTypes.
func KnownEventType(eventType string) bool {
	for _, t := range KnownEventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

const noteEventPrefix = "agent.note."

// NoteEventType returns the event type tag for a note category.
func NoteEventType(category string) string {
	return noteEventPrefix + category
}

// NoteCategory extracts the category from an agent.note.* event type.
// Returns "" for non-note event types.
func NoteCategory(eventType string) string {
	if len(eventType) <= len(noteEventPrefix) || eventType[:len(noteEventPrefix)] != noteEventPrefix {
		return ""
	}
	return eventType[len(noteEventPrefix):]
}
