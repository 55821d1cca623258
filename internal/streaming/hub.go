package streaming

import (
	"context"
	"encoding/json"
	"time"
)

// StreamEvent is a real-time copy of a durably committed log event.
type StreamEvent struct {
	WorkflowID string          `json:"workflow_id"`
	EventType  string          `json:"event_type"`
	AgentID    string          `json:"agent_id,omitempty"`
	Sequence   int64           `json:"sequence,omitempty"`
	Timestamp  time.Time       `json:"timestamp,omitzero"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Doc returns the event as a flat document for filter-expression
// evaluation. The payload is decoded best-effort; an undecodable payload
// appears as nil.
func (e StreamEvent) Doc() map[string]any {
	var payload any
	if len(e.Payload) > 0 {
		_ = json.Unmarshal(e.Payload, &payload)
	}
	return map[string]any{
		"workflow_id": e.WorkflowID,
		"event_type":  e.EventType,
		"agent_id":    e.AgentID,
		"sequence":    e.Sequence,
		"timestamp":   e.Timestamp.Format(time.RFC3339Nano),
		"payload":     payload,
	}
}

// EventFilter specifies which events a subscriber wants to receive.
// Where, when set, runs after the field criteria; it lets subscribers push
// arbitrary predicates (such as compiled filter expressions) into the hub
// so non-matching events never occupy channel buffer space.
type EventFilter struct {
	WorkflowID string                 `json:"workflow_id,omitempty"`
	EventTypes []string               `json:"event_types,omitempty"`
	Where      func(StreamEvent) bool `json:"-"`
}

// EventHub provides pub/sub for real-time log events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
