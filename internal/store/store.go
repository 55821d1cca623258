package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Events (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	AppendEvents(ctx context.Context, events []*Event) error
	GetEvents(ctx context.Context, workflowID string, q EventQuery) ([]*Event, error)
	RecentEvents(ctx context.Context, limit int) ([]*Event, error)
	CountEventsSince(ctx context.Context, workflowID string, sequence int64) (int64, error)
	ListWorkflowIDs(ctx context.Context) ([]string, error)

	// Snapshots
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshot(ctx context.Context, workflowID string) (*Snapshot, error)

	// Agents
	RegisterAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	UpdateAgentSeen(ctx context.Context, id string) error
	ListAgents(ctx context.Context) ([]*Agent, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
