// Package scheduler provides periodic execution of detection runs.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/respond/internal/lock"
	"github.com/secureops/workbench/respond/internal/models"
)

// Detector runs one detection pass over the recent event window.
type Detector interface {
	RunDetections(ctx context.Context, limit int) (*models.DetectionRunResponse, error)
}

// Scheduler periodically triggers detection runs. A run that finds the
// detection lock held by another replica is skipped, not retried.
type Scheduler struct {
	detector Detector
	interval time.Duration
	limit    int
	logger   *logging.Logger
	stop     chan struct{}
	stopped  chan struct{}
}

// NewScheduler creates a new detection scheduler. A limit of zero uses the
// detector's configured window.
func NewScheduler(detector Detector, interval time.Duration, limit int, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		detector: detector,
		interval: interval,
		limit:    limit,
		logger:   logger.With(logging.Component("scheduler")),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the scheduler loop. This should be called in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.stopped)

	s.logger.InfoContext(ctx, "detection scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stop:
			s.logger.InfoContext(ctx, "detection scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "detection scheduler context cancelled")
			return
		}
	}
}

// Stop signals the scheduler to stop and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.stopped
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	resp, err := s.detector.RunDetections(ctx, s.limit)
	switch {
	case errors.Is(err, lock.ErrLockHeld), err == nil && resp.Skipped:
		s.logger.DebugContext(ctx, "detection run skipped, lock held elsewhere")
	case err != nil:
		s.logger.ErrorContext(ctx, "scheduled detection run failed", logging.Error(err))
	default:
		s.logger.InfoContext(ctx, "scheduled detection run complete",
			logging.Count(resp.AlertsCreated), logging.Duration(time.Since(start)))
	}
}
