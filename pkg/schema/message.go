package schema

import "time"

// Priority orders message handling. Higher rank sorts first in inbox views.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the ordinal for sorting: urgent > high > normal > low.
// Unknown priorities rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Valid reports whether p is one of the four defined priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// AgentMessage is the wire form of a message exchanged between agents,
// carried inside an agent.message.sent payload.
type AgentMessage struct {
	MessageID string    `json:"message_id"`
	FromAgent string    `json:"from_agent"`
	ToAgent   string    `json:"to_agent"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body,omitempty"`
	Priority  Priority  `json:"priority,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// MessageSentPayload is the payload of an agent.message.sent event.
type MessageSentPayload struct {
	EventID string        `json:"event_id,omitempty"`
	Message *AgentMessage `json:"message"`
	SentAt  time.Time     `json:"sent_at,omitzero"`
}

// MessageAckPayload is the payload of an agent.message.acknowledged event.
// CorrelationID is the message_id of the message being acknowledged.
type MessageAckPayload struct {
	CorrelationID  string    `json:"correlation_id"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitzero"`
}

// MessageCompletedPayload is the payload of an agent.message.completed event.
type MessageCompletedPayload struct {
	CorrelationID string    `json:"correlation_id"`
	Result        string    `json:"result,omitempty"`
	Success       bool      `json:"success"`
	CompletedAt   time.Time `json:"completed_at,omitzero"`
}
