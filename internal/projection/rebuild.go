package projection

import (
	"context"

	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/pkg/schema"
)

// Fold replays events through the builder's handler table in slice order.
// Events with no registered handler are skipped.
func Fold[S any](b Builder[S], events []*store.Event, state S) S {
	handlers := b.Handlers()
	for _, e := range events {
		if e == nil {
			continue
		}
		if apply, ok := handlers[e.Type]; ok {
			state = apply(e, state)
		}
	}
	return state
}

// Rebuild loads a workflow's full event sequence in ascending sequence
// order and folds it from the builder's initial state. Replay is
// deterministic: the same event sequence always yields an equal state.
func Rebuild[S any](ctx context.Context, log *store.EventLog, workflowID string, b Builder[S]) (S, error) {
	return rebuildSince(ctx, log, workflowID, b, b.InitialState(), 0)
}

// snapshotEnvelope wraps a projection state with the projection name, so a
// snapshot written for one projection is never folded into another.
type snapshotEnvelope[S any] struct {
	Projection string `json:"projection"`
	State      S      `json:"state"`
}

// RebuildFromSnapshot is Rebuild seeded from the workflow's latest snapshot
// when one exists. A snapshot that fails to decode, or that was taken for a
// different projection, is ignored in favor of a full replay; a snapshot
// must never make a rebuild fail that would have succeeded from zero.
func RebuildFromSnapshot[S any](ctx context.Context, log *store.EventLog, workflowID string, b Builder[S]) (S, error) {
	snap, err := log.GetSnapshot(ctx, workflowID)
	if err != nil {
		var zero S
		return zero, rebuildFailed(workflowID, err)
	}
	if snap == nil {
		return Rebuild(ctx, log, workflowID, b)
	}

	var env snapshotEnvelope[S]
	if err := store.DecodeSnapshotState(snap.State, &env); err != nil || env.Projection != b.Name() {
		return Rebuild(ctx, log, workflowID, b)
	}
	return rebuildSince(ctx, log, workflowID, b, env.State, snap.EventSequence)
}

func rebuildSince[S any](ctx context.Context, log *store.EventLog, workflowID string, b Builder[S], state S, since int64) (S, error) {
	events, err := log.GetEvents(ctx, workflowID, store.EventQuery{Order: store.OrderAsc, Since: since})
	if err != nil {
		var zero S
		return zero, rebuildFailed(workflowID, err)
	}
	return Fold(b, events, state), nil
}

func rebuildFailed(workflowID string, err error) error {
	return schema.NewError(schema.ErrCodeRebuild, "failed to rebuild projection").
		WithWorkflow(workflowID).
		WithCause(err)
}

// SnapshotNow rebuilds the workflow's state, encodes it, and saves a
// snapshot valid through the last folded sequence number. Returns the saved
// snapshot, or (nil, nil) when the workflow has no events or the write was
// refused (boolean write contract).
func SnapshotNow[S any](ctx context.Context, log *store.EventLog, workflowID string, b Builder[S]) (*store.Snapshot, error) {
	events, err := log.GetEvents(ctx, workflowID, store.EventQuery{Order: store.OrderAsc})
	if err != nil {
		return nil, rebuildFailed(workflowID, err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	state := Fold(b, events, b.InitialState())
	encoded, err := store.EncodeSnapshotState(snapshotEnvelope[S]{
		Projection: b.Name(),
		State:      state,
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeRebuild, "failed to encode projection state").
			WithWorkflow(workflowID).
			WithCause(err)
	}

	snap := &store.Snapshot{
		WorkflowID:    workflowID,
		State:         encoded,
		EventSequence: events[len(events)-1].Sequence,
	}
	if !log.SaveSnapshot(ctx, snap) {
		return nil, nil
	}
	return snap, nil
}
