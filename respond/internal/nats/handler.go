package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/common/messaging"
	"github.com/secureops/workbench/respond/internal/models"
)

// Detector runs a detection pass.
type Detector interface {
	RunDetections(ctx context.Context, limit int) (*models.DetectionRunResponse, error)
}

// Handler processes incoming broker messages for the respond service.
type Handler struct {
	subscriber messaging.Subscriber
	detector   Detector
	logger     *logging.Logger
	subs       []messaging.Subscription
}

// NewHandler creates a new message handler.
func NewHandler(subscriber messaging.Subscriber, detector Detector, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		subscriber: subscriber,
		detector:   detector,
		logger:     logger.With(logging.Component("nats")),
	}
}

// Start subscribes to detection requests in the respond worker queue group.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.subscriber.QueueSubscribe(
		messaging.SubjectDetectionsRequest,
		messaging.QueueRespondWorkers,
		h.handleDetectionRequest,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to detection requests: %w", err)
	}
	h.subs = append(h.subs, sub)

	h.logger.InfoContext(ctx, "nats handler started", "subject", messaging.SubjectDetectionsRequest)
	return nil
}

// Stop unsubscribes from all subjects.
func (h *Handler) Stop() error {
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe", "subject", sub.Subject(), logging.Error(err))
		}
	}
	h.subs = nil
	h.logger.Info("nats handler stopped")
	return nil
}

func (h *Handler) handleDetectionRequest(ctx context.Context, msg *messaging.Message) error {
	var req DetectionRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.logger.WarnContext(ctx, "invalid detection request", logging.Error(err))
			return err
		}
	}

	start := time.Now()
	resp, err := h.detector.RunDetections(ctx, req.Limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "requested detection run failed",
			"request_id", req.RequestID, logging.Error(err))
		return err
	}
	h.logger.InfoContext(ctx, "requested detection run complete",
		"request_id", req.RequestID,
		logging.Count(resp.AlertsCreated),
		logging.Duration(time.Since(start)))
	return nil
}
