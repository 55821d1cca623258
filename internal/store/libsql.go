package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/courierhq/courier/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db   *sql.DB
	path string
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db, path: dbPath}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. query-plan checks).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Path returns the database location, embedded in read-path errors.
func (s *LibSQLStore) Path() string { return s.path }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// readFailed wraps a read-path storage error with the store's identity and
// the operation that failed.
func (s *LibSQLStore) readFailed(op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStore, "event store %s: %s failed", s.path, op).WithCause(err)
}

// --- Events ---

// AppendEvent durably commits a single event, assigning the next sequence
// number for its workflow. The whole operation runs in one transaction that
// takes the write lock up front so concurrent appenders cannot interleave
// sequence reads and inserts.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	return s.appendInTx(ctx, []*Event{event})
}

// AppendEvents commits a batch of events in a single transaction. Sequences
// are allocated per workflow in slice order. All-or-nothing: any insert
// failure rolls back the entire batch.
func (s *LibSQLStore) AppendEvents(ctx context.Context, events []*Event) error {
	return s.appendInTx(ctx, events)
}

func (s *LibSQLStore) appendInTx(ctx context.Context, events []*Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx starts a deferred transaction; force write-lock
	// acquisition with a write-intent statement before reading MAX(sequence).
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	// Per-workflow sequence counters for this batch.
	next := make(map[string]int64)
	for _, event := range events {
		seq, ok := next[event.WorkflowID]
		if !ok {
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE workflow_id = ?`, event.WorkflowID,
			).Scan(&seq); err != nil {
				return fmt.Errorf("get next sequence: %w", err)
			}
		}
		seq++
		next[event.WorkflowID] = seq
		event.Sequence = seq

		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (workflow_id, event_type, payload, agent_id, timestamp, sequence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			event.WorkflowID, event.Type, nullRaw(event.Payload), nullStr(event.AgentID),
			event.Timestamp, seq,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// GetEvents returns a workflow's events per the query. Ordering is by
// sequence; pagination is bound-safe (offsets past the end yield an empty
// result). Input validation is the caller's concern (see EventLog).
func (s *LibSQLStore) GetEvents(ctx context.Context, workflowID string, q EventQuery) ([]*Event, error) {
	where := []string{"workflow_id = ?"}
	args := []any{workflowID}

	if q.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, q.Type)
	}
	if q.Since > 0 {
		where = append(where, "sequence > ?")
		args = append(args, q.Since)
	}

	order := "ASC"
	if q.Order == OrderDesc {
		order = "DESC"
	}

	query := `SELECT id, workflow_id, event_type, payload, agent_id, timestamp, sequence FROM events WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY sequence " + order
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	} else if q.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET; -1 means unbounded.
		query += " LIMIT -1"
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.readFailed("get events for workflow "+workflowID, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, s.readFailed("scan events for workflow "+workflowID, err)
	}
	return events, nil
}

// RecentEvents returns up to limit events across all workflows, newest first
// by commit time. Best-effort convenience path for tailing displays.
func (s *LibSQLStore) RecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, event_type, payload, agent_id, timestamp, sequence
		 FROM events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, s.readFailed("get recent events", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, s.readFailed("scan recent events", err)
	}
	return events, nil
}

// CountEventsSince returns the number of a workflow's events with
// sequence > sequence. Used by the snapshotter to gauge backlog.
func (s *LibSQLStore) CountEventsSince(ctx context.Context, workflowID string, sequence int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE workflow_id = ? AND sequence > ?`,
		workflowID, sequence,
	).Scan(&n)
	if err != nil {
		return 0, s.readFailed("count events for workflow "+workflowID, err)
	}
	return n, nil
}

// ListWorkflowIDs returns the distinct workflow ids present in the log.
func (s *LibSQLStore) ListWorkflowIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT workflow_id FROM events ORDER BY workflow_id`)
	if err != nil {
		return nil, s.readFailed("list workflow ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.readFailed("scan workflow ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.readFailed("list workflow ids", err)
	}
	return ids, nil
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var agentID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Type, &payload, &agentID, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.AgentID = agentID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Snapshots ---

// SaveSnapshot inserts a snapshot row. Snapshots accumulate; newer rows
// supersede older ones without deleting them.
func (s *LibSQLStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (workflow_id, state, event_sequence, created_at) VALUES (?, ?, ?, ?)`,
		snap.WorkflowID, snap.State, snap.EventSequence, timeOrNow(snap.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the workflow's most recent snapshot by event sequence,
// or nil (no error) when none exists.
func (s *LibSQLStore) GetSnapshot(ctx context.Context, workflowID string) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, state, event_sequence, created_at FROM snapshots
		 WHERE workflow_id = ? ORDER BY event_sequence DESC, created_at DESC LIMIT 1`, workflowID,
	).Scan(&snap.WorkflowID, &snap.State, &snap.EventSequence, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, s.readFailed("get snapshot for workflow "+workflowID, err)
	}
	return snap, nil
}

// --- Agents ---

func (s *LibSQLStore) RegisterAgent(ctx context.Context, agent *Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, type, metadata, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, type=excluded.type, metadata=excluded.metadata`,
		agent.ID, agent.Name, agent.Type, nullRaw(agent.Metadata), timeOrNow(agent.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a := &Agent{}
	var metadata sql.NullString
	var lastSeen sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, metadata, created_at, last_seen_at FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Type, &metadata, &a.CreatedAt, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "agent %q not found", id)
	}
	if err != nil {
		return nil, s.readFailed("get agent "+id, err)
	}
	a.Metadata = rawOrNil(metadata)
	if lastSeen.Valid {
		a.LastSeenAt = &lastSeen.Time
	}
	return a, nil
}

func (s *LibSQLStore) UpdateAgentSeen(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_seen_at = CURRENT_TIMESTAMP WHERE id = ?`, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "agent %q not found", id)
	}
	return nil
}

func (s *LibSQLStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, metadata, created_at, last_seen_at FROM agents ORDER BY id`,
	)
	if err != nil {
		return nil, s.readFailed("list agents", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a := &Agent{}
		var metadata sql.NullString
		var lastSeen sql.NullTime
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &metadata, &a.CreatedAt, &lastSeen); err != nil {
			return nil, s.readFailed("scan agents", err)
		}
		a.Metadata = rawOrNil(metadata)
		if lastSeen.Valid {
			a.LastSeenAt = &lastSeen.Time
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.readFailed("list agents", err)
	}
	return agents, nil
}

// --- Helpers ---

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r []byte) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) []byte {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return []byte(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
