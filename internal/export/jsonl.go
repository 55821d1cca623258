package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/courierhq/courier/internal/store"
)

// importBatchSize bounds the events held in memory per append transaction.
const importBatchSize = 500

// maxLineBytes allows for large payloads in a single JSONL line.
const maxLineBytes = 4 << 20

// WriteEvents writes events as JSON Lines, one event per line, in the order
// given. Returns the number of lines written.
func WriteEvents(w io.Writer, events []*store.Event) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, e := range events {
		if err := enc.Encode(e); err != nil {
			return i, fmt.Errorf("encode event %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return len(events), err
	}
	return len(events), nil
}

// Workflow exports one workflow's events in ascending sequence order.
func Workflow(ctx context.Context, log *store.EventLog, workflowID string, w io.Writer) (int, error) {
	events, err := log.GetEvents(ctx, workflowID, store.EventQuery{Order: store.OrderAsc})
	if err != nil {
		return 0, err
	}
	return WriteEvents(w, events)
}

// All exports every workflow's events, workflow by workflow in ascending
// sequence order.
func All(ctx context.Context, log *store.EventLog, w io.Writer) (int, error) {
	workflowIDs, err := log.ListWorkflowIDs(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, workflowID := range workflowIDs {
		n, err := Workflow(ctx, log, workflowID, w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Import reads JSON Lines and appends the events to the log in batches.
// Malformed lines are skipped silently; an import must survive a partially
// corrupted dump. IDs and sequence numbers are reassigned by the log.
// Returns the number of events imported and the number of lines skipped.
func Import(ctx context.Context, log *store.EventLog, r io.Reader) (imported, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var batch []*store.Event
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if !log.AppendBatch(ctx, batch) {
			return fmt.Errorf("import aborted after %d events: batch append failed", imported)
		}
		imported += len(batch)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e store.Event
		if err := json.Unmarshal(line, &e); err != nil {
			skipped++
			continue
		}
		if e.WorkflowID == "" || e.Type == "" || !json.Valid(e.Payload) {
			skipped++
			continue
		}

		// The destination log owns identity and ordering.
		e.ID = 0
		e.Sequence = 0

		batch = append(batch, &e)
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return imported, skipped, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return imported, skipped, fmt.Errorf("read import stream: %w", err)
	}
	if err := flush(); err != nil {
		return imported, skipped, err
	}
	return imported, skipped, nil
}
