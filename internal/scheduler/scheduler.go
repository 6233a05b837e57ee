package scheduler

import (
	"context"
	"log/slog"
	"time"

	"wall_rewriter/internal/domain"
)

// Syncer runs one monitoring cycle.
type Syncer interface {
	Sync(ctx context.Context) (*domain.CycleStats, error)
}

// Scheduler runs cycles with a fixed delay between the end of one cycle
// and the start of the next.
type Scheduler struct {
	syncer       Syncer
	interval     time.Duration
	cycleTimeout time.Duration
	logger       *slog.Logger
}

func NewScheduler(syncer Syncer, interval, cycleTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:       syncer,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       logger.With("component", "scheduler"),
	}
}

// Start blocks until ctx is cancelled. A cycle already running when ctx
// ends is allowed to finish; no further cycle is started.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.runSync(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cycleTimeout)
	defer cancel()

	stats, err := s.syncer.Sync(syncCtx)
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		return
	}
	s.logger.Debug("cycle finished", "processed", stats.Processed(), "failed", stats.Failed(), "duration", stats.Duration)
}
