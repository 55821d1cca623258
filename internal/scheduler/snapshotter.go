package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/courierhq/courier/internal/projection"
	"github.com/courierhq/courier/internal/store"
)

const (
	// DefaultCadence snapshots every five minutes.
	DefaultCadence = "*/5 * * * *"
	// DefaultThreshold is the minimum number of events accumulated past the
	// last snapshot before a workflow is worth snapshotting again.
	DefaultThreshold = int64(100)
)

// Snapshotter periodically snapshots the notes projection of workflows whose
// event backlog since the last snapshot has crossed a threshold, keeping
// rebuild cost bounded as logs grow.
type Snapshotter struct {
	log       *store.EventLog
	schedule  cron.Schedule
	threshold int64
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // workflow IDs currently snapshotting (dedup)
}

// NewSnapshotter creates a Snapshotter. An empty cadence uses
// DefaultCadence; a non-positive threshold uses DefaultThreshold.
func NewSnapshotter(log *store.EventLog, cadence string, threshold int64, logger *slog.Logger) (*Snapshotter, error) {
	if cadence == "" {
		cadence = DefaultCadence
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cadence)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot cadence %q: %w", cadence, err)
	}

	return &Snapshotter{
		log:       log,
		schedule:  schedule,
		threshold: threshold,
		logger:    logger,
		inflight:  make(map[string]struct{}),
	}, nil
}

// Start launches the background snapshot loop.
func (s *Snapshotter) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("snapshotter already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(loopCtx)
	s.logger.Info("snapshotter started", slog.Int64("threshold", s.threshold))
	return nil
}

func (s *Snapshotter) loop(ctx context.Context) {
	defer close(s.done)

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep snapshots every workflow past the threshold. Exposed for manual
// triggering from the CLI.
func (s *Snapshotter) Sweep(ctx context.Context) {
	workflowIDs, err := s.log.ListWorkflowIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list workflows", slog.String("error", err.Error()))
		return
	}

	for _, workflowID := range workflowIDs {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := s.maybeSnapshot(ctx, workflowID); err != nil {
			s.logger.Error("snapshot failed",
				slog.String("workflow_id", workflowID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// maybeSnapshot snapshots one workflow if its backlog crosses the threshold
// and it is not already being snapshotted.
func (s *Snapshotter) maybeSnapshot(ctx context.Context, workflowID string) error {
	snap, err := s.log.GetSnapshot(ctx, workflowID)
	if err != nil {
		return err
	}
	var since int64
	if snap != nil {
		since = snap.EventSequence
	}

	pending, err := s.log.CountEventsSince(ctx, workflowID, since)
	if err != nil {
		return err
	}
	if pending < s.threshold {
		return nil
	}

	if !s.tryAcquire(workflowID) {
		return nil // already snapshotting (dedup)
	}
	defer s.release(workflowID)

	saved, err := projection.SnapshotNow(ctx, s.log, workflowID, projection.NewNotesBuilder())
	if err != nil {
		return err
	}
	if saved != nil {
		s.logger.Info("snapshot taken",
			slog.String("workflow_id", workflowID),
			slog.Int64("event_sequence", saved.EventSequence),
		)
	}
	return nil
}

func (s *Snapshotter) tryAcquire(workflowID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[workflowID]; ok {
		return false
	}
	s.inflight[workflowID] = struct{}{}
	return true
}

func (s *Snapshotter) release(workflowID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, workflowID)
}

// Stop gracefully shuts down the snapshot loop.
func (s *Snapshotter) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("snapshotter stopped")
	return nil
}
