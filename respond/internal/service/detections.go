package service

import (
	"context"
	"errors"
	"time"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/common/messaging"
	"github.com/secureops/workbench/respond/internal/lock"
	"github.com/secureops/workbench/respond/internal/metrics"
	"github.com/secureops/workbench/respond/internal/models"
)

// RunDetections evaluates every rule over the most recent events. limit <= 0
// selects the configured window. Only one run proceeds at a time; a caller
// that finds the lock held gets zero alerts with Skipped set.
func (s *Service) RunDetections(ctx context.Context, limit int) (*models.DetectionRunResponse, error) {
	if limit <= 0 {
		limit = s.window
	}

	release, err := s.locker.Acquire(ctx, detectionLockName)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			metrics.DetectionRuns.WithLabelValues(metrics.StatusSkipped).Inc()
			s.logger.DebugContext(ctx, "detection run skipped, lock held elsewhere")
			return &models.DetectionRunResponse{Skipped: true}, nil
		}
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release detection lock", logging.Error(err))
		}
	}()

	start := time.Now()
	created, err := s.engine.Run(ctx, limit)
	metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DetectionRuns.WithLabelValues(metrics.StatusFailure).Inc()
		s.logger.ErrorContext(ctx, "detection run failed", logging.Error(err))
		return nil, err
	}
	metrics.DetectionRuns.WithLabelValues(metrics.StatusSuccess).Inc()
	metrics.AlertsCreated.Add(float64(len(created)))

	s.notify(ctx, messaging.SubjectAlertsCreated, func(ctx context.Context) error {
		return s.publisher.PublishAlertsCreated(ctx, created)
	})
	return &models.DetectionRunResponse{AlertsCreated: len(created)}, nil
}

// ListAlerts returns alerts, newest first.
func (s *Service) ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	return s.repo.ListAlerts(ctx, clampLimit(limit, DefaultAlertLimit))
}

// GetAlert returns one alert.
func (s *Service) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	return s.repo.GetAlert(ctx, id)
}

// DeleteAlert removes an alert and its incident links.
func (s *Service) DeleteAlert(ctx context.Context, id string) error {
	return s.repo.DeleteAlert(ctx, id)
}
