package store

import (
	"encoding/json"
	"time"
)

// Event is an immutable entry in the append-only coordination log.
// Sequence is store-assigned and strictly increases within a workflow;
// cross-workflow ordering is undefined.
type Event struct {
	ID         int64           `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	AgentID    string          `json:"agent_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// Snapshot captures encoded projection state as of EventSequence.
// A snapshot plus all events with Sequence > EventSequence reconstructs the
// same state as replaying from zero. Snapshots are superseded, never deleted.
type Snapshot struct {
	WorkflowID    string    `json:"workflow_id"`
	State         []byte    `json:"snapshot_data"`
	EventSequence int64     `json:"event_sequence_number"`
	CreatedAt     time.Time `json:"created_at"`
}

// Agent represents a registered agent identity.
type Agent struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"` // llm, system, human, service
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	LastSeenAt *time.Time      `json:"last_seen_at,omitempty"`
}

// Sort orders for event queries.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// EventQuery specifies criteria for reading a workflow's events.
// The zero value reads everything in ascending sequence order.
type EventQuery struct {
	Type   string `json:"event_type,omitempty"` // filter by event type when non-empty
	Order  string `json:"order_by,omitempty"`   // "asc" (default) or "desc"
	Limit  int    `json:"limit,omitempty"`      // <= 0 means no limit
	Offset int    `json:"offset,omitempty"`
	Since  int64  `json:"since,omitempty"` // only events with sequence > Since
}
