package projection

import "github.com/courierhq/courier/internal/store"

// ApplyFunc folds one event into a state value. Implementations must be
// pure: no I/O, deterministic (timestamps come from the event, never the
// wall clock), and must not mutate the input state or any of its nested
// containers. A malformed payload returns the state unchanged so that one
// corrupt event never aborts a rebuild.
type ApplyFunc[S any] func(e *store.Event, state S) S

// Builder defines the one-event-type-at-a-time state transition contract,
// independent of any storage concern.
//
// Handlers must cover every type in schema.KnownEventTypes. Event types a
// builder deliberately ignores get an explicit Identity entry, so "ignored"
// is a documented decision rather than a missing case. Event types outside
// the known set are skipped by the fold.
type Builder[S any] interface {
	// Name identifies the projection in snapshot envelopes. A workflow has
	// one snapshot slot, so the name guards against folding on top of a
	// snapshot taken for a different projection.
	Name() string

	// InitialState returns the empty state, called once per rebuild.
	InitialState() S

	// Handlers returns the per-event-type fold table.
	Handlers() map[string]ApplyFunc[S]
}

// Identity is the documented placeholder handler for event types a builder
// deliberately does not fold.
func Identity[S any](_ *store.Event, state S) S { return state }
