package projection

import (
	"encoding/json"
	"slices"
	"sort"
	"time"

	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/pkg/schema"
)

// InboxMessage is a message received by the mailbox's agent.
type InboxMessage struct {
	EventID        string          `json:"event_id"`
	MessageID      string          `json:"message_id"`
	FromAgent      string          `json:"from_agent"`
	ToAgent        string          `json:"to_agent"`
	Subject        string          `json:"subject"`
	Body           string          `json:"body"`
	Priority       schema.Priority `json:"priority"`
	ReceivedAt     time.Time       `json:"received_at"`
	Acknowledged   bool            `json:"acknowledged"`
	AcknowledgedBy string          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt time.Time       `json:"acknowledged_at,omitzero"`
}

// OutboxMessage is a message sent by the mailbox's agent, tracked through
// acknowledgement and completion.
type OutboxMessage struct {
	EventID        string          `json:"event_id"`
	MessageID      string          `json:"message_id"`
	FromAgent      string          `json:"from_agent"`
	ToAgent        string          `json:"to_agent"`
	Subject        string          `json:"subject"`
	Body           string          `json:"body"`
	Priority       schema.Priority `json:"priority"`
	SentAt         time.Time       `json:"sent_at"`
	Acknowledged   bool            `json:"acknowledged"`
	AcknowledgedBy string          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt time.Time       `json:"acknowledged_at,omitzero"`
	Completed      bool            `json:"completed"`
	Success        bool            `json:"success"`
	Result         string          `json:"result,omitempty"`
	CompletedAt    time.Time       `json:"completed_at,omitzero"`
}

// MailboxState is one agent's view of the workflow's message traffic.
// ConversationHistory records completed exchanges in completion order.
type MailboxState struct {
	AgentID             string          `json:"agent_id"`
	Inbox               []InboxMessage  `json:"inbox"`
	Outbox              []OutboxMessage `json:"outbox"`
	ConversationHistory []OutboxMessage `json:"conversation_history"`
}

func (s MailboxState) cloneSlices() MailboxState {
	s.Inbox = slices.Clone(s.Inbox)
	s.Outbox = slices.Clone(s.Outbox)
	s.ConversationHistory = slices.Clone(s.ConversationHistory)
	return s
}

// MailboxBuilder folds message events into a MailboxState from one agent's
// perspective. Note events are deliberately ignored.
type MailboxBuilder struct {
	agentID string
}

func NewMailboxBuilder(agentID string) *MailboxBuilder {
	return &MailboxBuilder{agentID: agentID}
}

func (b *MailboxBuilder) Name() string {
	return "mailbox/" + b.agentID
}

func (b *MailboxBuilder) InitialState() MailboxState {
	return MailboxState{AgentID: b.agentID}
}

func (b *MailboxBuilder) Handlers() map[string]ApplyFunc[MailboxState] {
	h := map[string]ApplyFunc[MailboxState]{
		schema.EventMessageSent:         applyMessageSent,
		schema.EventMessageAcknowledged: applyMessageAcknowledged,
		schema.EventMessageCompleted:    applyMessageCompleted,
	}
	for _, category := range schema.NoteCategories {
		h[schema.NoteEventType(category)] = Identity[MailboxState]
	}
	return h
}

func applyMessageSent(e *store.Event, state MailboxState) MailboxState {
	var p schema.MessageSentPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.Message == nil || p.SentAt.IsZero() {
		return state
	}
	msg := p.Message

	priority := msg.Priority
	if !priority.Valid() {
		priority = schema.PriorityNormal
	}
	sentAt := p.SentAt

	out := state.cloneSlices()
	if msg.ToAgent == state.AgentID {
		out.Inbox = append(out.Inbox, InboxMessage{
			EventID:    p.EventID,
			MessageID:  msg.MessageID,
			FromAgent:  msg.FromAgent,
			ToAgent:    msg.ToAgent,
			Subject:    msg.Subject,
			Body:       msg.Body,
			Priority:   priority,
			ReceivedAt: sentAt,
		})
	}
	if msg.FromAgent == state.AgentID {
		out.Outbox = append(out.Outbox, OutboxMessage{
			EventID:   p.EventID,
			MessageID: msg.MessageID,
			FromAgent: msg.FromAgent,
			ToAgent:   msg.ToAgent,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Priority:  priority,
			SentAt:    sentAt,
		})
	}
	return out
}

func applyMessageAcknowledged(e *store.Event, state MailboxState) MailboxState {
	var p schema.MessageAckPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.CorrelationID == "" {
		return state
	}
	ackAt := p.AcknowledgedAt
	if ackAt.IsZero() {
		ackAt = e.Timestamp
	}

	out := state.cloneSlices()
	for i := range out.Inbox {
		if out.Inbox[i].MessageID == p.CorrelationID {
			out.Inbox[i].Acknowledged = true
			out.Inbox[i].AcknowledgedBy = p.AcknowledgedBy
			out.Inbox[i].AcknowledgedAt = ackAt
		}
	}
	for i := range out.Outbox {
		if out.Outbox[i].MessageID == p.CorrelationID {
			out.Outbox[i].Acknowledged = true
			out.Outbox[i].AcknowledgedBy = p.AcknowledgedBy
			out.Outbox[i].AcknowledgedAt = ackAt
		}
	}
	return out
}

func applyMessageCompleted(e *store.Event, state MailboxState) MailboxState {
	var p schema.MessageCompletedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.CorrelationID == "" {
		return state
	}
	completedAt := p.CompletedAt
	if completedAt.IsZero() {
		completedAt = e.Timestamp
	}

	out := state.cloneSlices()
	for i := range out.Outbox {
		if out.Outbox[i].MessageID != p.CorrelationID {
			continue
		}
		out.Outbox[i].Completed = true
		out.Outbox[i].Success = p.Success
		out.Outbox[i].Result = p.Result
		out.Outbox[i].CompletedAt = completedAt
		out.ConversationHistory = append(out.ConversationHistory, out.Outbox[i])
	}
	return out
}

// UnreadInbox returns unacknowledged inbox messages ordered by priority
// (urgent first), then by receipt time, oldest first. Ties keep inbox order.
func UnreadInbox(state MailboxState) []InboxMessage {
	var unread []InboxMessage
	for _, m := range state.Inbox {
		if !m.Acknowledged {
			unread = append(unread, m)
		}
	}
	sort.SliceStable(unread, func(i, j int) bool {
		ri, rj := unread[i].Priority.Rank(), unread[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return unread[i].ReceivedAt.Before(unread[j].ReceivedAt)
	})
	return unread
}

// PendingOutbox returns sent messages not yet completed, oldest first.
func PendingOutbox(state MailboxState) []OutboxMessage {
	var pending []OutboxMessage
	for _, m := range state.Outbox {
		if !m.Completed {
			pending = append(pending, m)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].SentAt.Before(pending[j].SentAt)
	})
	return pending
}

// Conversation returns completed exchanges ordered by completion time,
// oldest first. An empty agentID returns the full history; otherwise only
// exchanges the agent took part in are included. Ties keep completion order.
func Conversation(state MailboxState, agentID string) []OutboxMessage {
	var history []OutboxMessage
	for _, m := range state.ConversationHistory {
		if agentID == "" || m.FromAgent == agentID || m.ToAgent == agentID {
			history = append(history, m)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CompletedAt.Before(history[j].CompletedAt)
	})
	return history
}
