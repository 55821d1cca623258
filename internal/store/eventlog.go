package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/courierhq/courier/internal/streaming"
	"github.com/courierhq/courier/pkg/schema"
)

// RecentEventsCap bounds the best-effort tailing path regardless of the
// requested limit, to avoid unbounded memory growth.
const RecentEventsCap = 1000

// EventLog is the event-sourcing surface over a LibSQLStore.
//
// Write paths (Append, AppendBatch, SaveSnapshot) follow a boolean contract:
// operational storage failures are logged and reported as false, never as
// errors. Read paths return validation errors before any I/O and storage
// errors with the database identity embedded. Callers treat false as
// retryable and an error as a bug to fix.
type EventLog struct {
	store  *LibSQLStore
	hub    streaming.EventHub
	logger *slog.Logger
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{store: s, logger: logger}
}

// WithHub makes the log publish every durably committed event to hub.
func (el *EventLog) WithHub(hub streaming.EventHub) *EventLog {
	el.hub = hub
	return el
}

// Store returns the underlying LibSQLStore.
func (el *EventLog) Store() *LibSQLStore { return el.store }

// validateEvent checks that an event is well-formed for appending.
func validateEvent(e *Event) error {
	if e == nil {
		return schema.NewError(schema.ErrCodeValidation, "event cannot be nil")
	}
	if strings.TrimSpace(e.WorkflowID) == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow_id cannot be empty")
	}
	if strings.TrimSpace(e.Type) == "" {
		return schema.NewError(schema.ErrCodeValidation, "event_type cannot be empty")
	}
	if len(e.Payload) > 0 && !json.Valid(e.Payload) {
		return schema.NewError(schema.ErrCodeValidation, "payload must be valid JSON")
	}
	return nil
}

// Append durably commits one event, assigning its sequence number.
// Returns false for malformed input and for any storage failure; the
// transaction is rolled back and the failure logged.
func (el *EventLog) Append(ctx context.Context, event *Event) bool {
	if err := validateEvent(event); err != nil {
		el.logger.Warn("rejected event append", slog.String("error", err.Error()))
		return false
	}
	if err := el.store.AppendEvent(ctx, event); err != nil {
		el.logger.Error("event append failed",
			slog.String("workflow_id", event.WorkflowID),
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()),
		)
		return false
	}
	el.publish(ctx, event)
	return true
}

// AppendBatch commits events atomically in one transaction. If any element
// is nil or malformed the entire batch is rejected and nothing is persisted.
// Exists as a performance optimization over repeated single appends: one
// commit round-trip instead of N.
func (el *EventLog) AppendBatch(ctx context.Context, events []*Event) bool {
	if len(events) == 0 {
		return false
	}
	for _, e := range events {
		if err := validateEvent(e); err != nil {
			el.logger.Warn("rejected event batch", slog.String("error", err.Error()))
			return false
		}
	}
	if err := el.store.AppendEvents(ctx, events); err != nil {
		el.logger.Error("event batch append failed",
			slog.Int("count", len(events)),
			slog.String("error", err.Error()),
		)
		return false
	}
	for _, e := range events {
		el.publish(ctx, e)
	}
	return true
}

func (el *EventLog) publish(ctx context.Context, e *Event) {
	if el.hub == nil {
		return
	}
	_ = el.hub.Publish(ctx, streaming.StreamEvent{
		WorkflowID: e.WorkflowID,
		EventType:  e.Type,
		AgentID:    e.AgentID,
		Sequence:   e.Sequence,
		Timestamp:  e.Timestamp,
		Payload:    json.RawMessage(e.Payload),
	})
}

// GetEvents returns a workflow's events per the query, validating inputs
// before any I/O is attempted.
func (el *EventLog) GetEvents(ctx context.Context, workflowID string, q EventQuery) ([]*Event, error) {
	if strings.TrimSpace(workflowID) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow_id cannot be empty")
	}
	if q.Type != "" && strings.TrimSpace(q.Type) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "event_type cannot be empty")
	}
	if q.Order != "" && q.Order != OrderAsc && q.Order != OrderDesc {
		return nil, schema.NewError(schema.ErrCodeValidation, `order_by must be "asc" or "desc"`)
	}
	if q.Limit < 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "limit cannot be negative")
	}
	if q.Offset < 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "offset cannot be negative")
	}
	return el.store.GetEvents(ctx, workflowID, q)
}

// SaveSnapshot persists a snapshot following the boolean write contract.
func (el *EventLog) SaveSnapshot(ctx context.Context, snap *Snapshot) bool {
	if snap == nil || strings.TrimSpace(snap.WorkflowID) == "" || len(snap.State) == 0 {
		el.logger.Warn("rejected malformed snapshot")
		return false
	}
	if err := el.store.SaveSnapshot(ctx, snap); err != nil {
		el.logger.Error("snapshot save failed",
			slog.String("workflow_id", snap.WorkflowID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// GetSnapshot returns the latest snapshot for a workflow, or nil when none
// exists. Storage failures are returned with context.
func (el *EventLog) GetSnapshot(ctx context.Context, workflowID string) (*Snapshot, error) {
	if strings.TrimSpace(workflowID) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow_id cannot be empty")
	}
	return el.store.GetSnapshot(ctx, workflowID)
}

// RecentEvents returns up to limit recent events across workflows, capped at
// RecentEventsCap. Rows whose payload is not valid JSON are silently
// skipped: this path is best-effort and not part of the store's
// correctness contract.
func (el *EventLog) RecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 || limit > RecentEventsCap {
		limit = RecentEventsCap
	}
	events, err := el.store.RecentEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	sane := events[:0]
	for _, e := range events {
		if len(e.Payload) > 0 && !json.Valid(e.Payload) {
			continue
		}
		sane = append(sane, e)
	}
	return sane, nil
}

// ListWorkflowIDs returns the distinct workflow ids present in the log.
func (el *EventLog) ListWorkflowIDs(ctx context.Context) ([]string, error) {
	return el.store.ListWorkflowIDs(ctx)
}

// CountEventsSince reports how many events a workflow has accumulated past
// the given sequence number.
func (el *EventLog) CountEventsSince(ctx context.Context, workflowID string, sequence int64) (int64, error) {
	if strings.TrimSpace(workflowID) == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "workflow_id cannot be empty")
	}
	return el.store.CountEventsSince(ctx, workflowID, sequence)
}
