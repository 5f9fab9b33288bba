// Package scheduler runs the Relayer's background reconcilers: market sync
// and discovery, dispute-window sweeps, finalization sweeps, stale-proposal
// sweeps, and sync-log cleanup, each on its own cadence.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sidebet/relayer/internal/domain"
	"github.com/sidebet/relayer/internal/service"
)

const (
	syncInterval      = 5 * time.Minute
	disputeInterval   = 2 * time.Minute
	finalizeInterval  = 1 * time.Minute
	staleProposalTick = time.Hour
	logCleanupCron    = "0 3 * * *" // daily at 03:00
	logRetention      = 30 * 24 * time.Hour
	lockTTL           = 4 * time.Minute
	lockHeartbeat     = lockTTL / 2
)

// Scheduler orchestrates the Relayer's periodic reconcilers as a single
// errgroup, one goroutine per cadence. Each job acquires a distributed lock
// before running so that only one replica executes it at a time; a
// lock-already-held response is treated as "another replica has this," not
// an error.
type Scheduler struct {
	sync        *service.SyncService
	finalize    *service.FinalizationService
	syncLog     domain.SyncLogStore
	locks       domain.LockManager
	logger      *slog.Logger
	pendingLim  int
}

// NewScheduler constructs a Scheduler. pendingLimit bounds how many queue
// entries RunPendingSweep processes per finalization tick.
func NewScheduler(
	sync *service.SyncService,
	finalize *service.FinalizationService,
	syncLog domain.SyncLogStore,
	locks domain.LockManager,
	pendingLimit int,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		sync:       sync,
		finalize:   finalize,
		syncLog:    syncLog,
		locks:      locks,
		pendingLim: pendingLimit,
		logger:     logger,
	}
}

// Run starts every reconciler and blocks until ctx is cancelled or one of
// them returns a non-context error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.loop(ctx, syncInterval, s.runMarketSync) })
	g.Go(func() error { return s.loop(ctx, disputeInterval, s.runDisputeSweep) })
	g.Go(func() error { return s.loop(ctx, finalizeInterval, s.runFinalizationSweep) })
	g.Go(func() error { return s.loop(ctx, staleProposalTick, s.runStaleProposalSweep) })
	g.Go(func() error {
		err := runCron(ctx, logCleanupCron, s.runLogCleanup)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("log cleanup cron: %w", err)
	})

	err := g.Wait()
	if err != nil {
		s.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("scheduler stopped cleanly")
	return nil
}

// loop runs fn immediately and then every interval until ctx is cancelled.
// Per-job exclusion (skip-if-busy, single-instance across replicas) is
// handled inside fn via withLock.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// withLock runs fn only if the distributed lock for name is free. It reports
// ErrLockHeld as a skip, not a failure, since another replica owns the tick.
// While fn runs, a heartbeat goroutine extends the lock at lockHeartbeat
// intervals so jobs that outrun lockTTL — a finalization sweep working
// through a full pendingLim batch can take far longer than 4 minutes — don't
// lose the lock to another replica mid-run.
func (s *Scheduler) withLock(ctx context.Context, name string, fn func(ctx context.Context) error) {
	lock, err := s.locks.Acquire(ctx, "scheduler:"+name, lockTTL)
	if err != nil {
		if err == domain.ErrLockHeld {
			return
		}
		s.logger.Error("lock acquire failed", slog.String("job", name), slog.String("error", err.Error()))
		return
	}
	defer lock.Unlock()

	done := make(chan struct{})
	defer close(done)
	go s.heartbeat(ctx, name, lock, done)

	if err := fn(ctx); err != nil {
		s.logger.Error("scheduled job failed", slog.String("job", name), slog.String("error", err.Error()))
	}
}

// heartbeat extends lock every lockHeartbeat interval until done is closed or
// ctx is cancelled. It logs and gives up on the first extend failure, since
// that means another replica has already claimed the lock.
func (s *Scheduler) heartbeat(ctx context.Context, name string, lock domain.Lock, done <-chan struct{}) {
	ticker := time.NewTicker(lockHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Extend(ctx, lockTTL); err != nil {
				s.logger.Error("lock extend failed", slog.String("job", name), slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (s *Scheduler) runMarketSync(ctx context.Context) {
	s.withLock(ctx, "market_sync", func(ctx context.Context) error {
		if _, err := s.sync.DiscoverNewMarkets(ctx); err != nil {
			s.logger.Error("discover new markets failed", slog.String("error", err.Error()))
		}
		return s.sync.SweepStale(ctx)
	})
}

func (s *Scheduler) runDisputeSweep(ctx context.Context) {
	s.withLock(ctx, "dispute_sweep", s.finalize.CheckDisputeWindows)
}

func (s *Scheduler) runFinalizationSweep(ctx context.Context) {
	s.withLock(ctx, "finalization_sweep", func(ctx context.Context) error {
		return s.finalize.RunPendingSweep(ctx, s.pendingLim)
	})
}

func (s *Scheduler) runStaleProposalSweep(ctx context.Context) {
	s.withLock(ctx, "stale_proposal_sweep", s.finalize.CheckOldProposals)
}

func (s *Scheduler) runLogCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s.withLock(ctx, "log_cleanup", func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-logRetention)
		deleted, err := s.syncLog.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("delete sync log entries before %v: %w", cutoff, err)
		}
		s.logger.Info("sync log cleanup complete", slog.Int64("deleted", deleted))
		return nil
	})
}
