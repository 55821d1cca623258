package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/internal/validation"
)

// openLog opens the configured database, runs migrations, and wraps it in
// an event log. The returned cleanup closes the store.
func openLog(ctx context.Context, cfg Config, logger *slog.Logger) (*store.EventLog, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("migrate store: %w", err)
	}

	return store.NewEventLog(s, logger), func() { _ = s.Close() }, nil
}

// appendEvent validates a payload against its schema and appends it.
func appendEvent(ctx context.Context, log *store.EventLog, workflowID, eventType, agentID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return fmt.Errorf("load payload schemas: %w", err)
	}
	if err := validator.ValidatePayload(eventType, raw); err != nil {
		return err
	}

	if !log.Append(ctx, &store.Event{
		WorkflowID: workflowID,
		Type:       eventType,
		AgentID:    agentID,
		Timestamp:  time.Now().UTC(),
		Payload:    raw,
	}) {
		return fmt.Errorf("failed to append event")
	}
	return nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
