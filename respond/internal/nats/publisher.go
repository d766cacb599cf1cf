package nats

import (
	"context"
	"time"

	"github.com/secureops/workbench/common/messaging"
	"github.com/secureops/workbench/respond/internal/models"
)

// Publisher publishes respond domain events.
type Publisher struct {
	broker messaging.Publisher
}

// NewPublisher wraps a broker publisher. A nil broker records nothing.
func NewPublisher(broker messaging.Publisher) *Publisher {
	return &Publisher{broker: broker}
}

// PublishAlertsCreated publishes one message for a batch of new alerts.
func (p *Publisher) PublishAlertsCreated(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	event := &AlertsCreatedEvent{
		Count:     len(alerts),
		Alerts:    make([]AlertSummary, len(alerts)),
		CreatedAt: alerts[0].CreatedAt,
	}
	for i, a := range alerts {
		event.Alerts[i] = AlertSummary{
			AlertID:  a.ID,
			RuleID:   a.RuleID,
			RuleName: a.RuleName,
			Severity: a.Severity,
			EventID:  a.EventID,
			Source:   a.Source,
			Host:     a.Host,
			User:     a.User,
		}
	}
	return p.publish(ctx, messaging.SubjectAlertsCreated, event)
}

// PublishIncidentCreated publishes an incident creation.
func (p *Publisher) PublishIncidentCreated(ctx context.Context, inc *models.Incident, linked int) error {
	return p.publish(ctx, messaging.SubjectIncidentsCreated, &IncidentEvent{
		IncidentID: inc.ID,
		Title:      inc.Title,
		Severity:   inc.Severity,
		Status:     inc.Status,
		Change:     ChangeCreated,
		AlertCount: linked,
		OccurredAt: inc.CreatedAt,
	})
}

// PublishIncidentUpdated publishes a change to an existing incident.
func (p *Publisher) PublishIncidentUpdated(ctx context.Context, inc *models.Incident, change string) error {
	return p.publish(ctx, messaging.SubjectIncidentsUpdated, &IncidentEvent{
		IncidentID: inc.ID,
		Title:      inc.Title,
		Severity:   inc.Severity,
		Status:     inc.Status,
		Change:     change,
		OccurredAt: inc.UpdatedAt,
	})
}

// PublishIncidentDeleted publishes an incident deletion.
func (p *Publisher) PublishIncidentDeleted(ctx context.Context, incidentID string, at time.Time) error {
	return p.publish(ctx, messaging.SubjectIncidentsDeleted, &IncidentEvent{
		IncidentID: incidentID,
		Change:     ChangeDeleted,
		OccurredAt: at,
	})
}

// PublishEvidenceRecorded publishes a newly stored evidence file.
func (p *Publisher) PublishEvidenceRecorded(ctx context.Context, file *models.EvidenceFile) error {
	return p.publish(ctx, messaging.SubjectEvidenceRecorded, &EvidenceRecordedEvent{
		IncidentID: file.IncidentID,
		EvidenceID: file.ID,
		Filename:   file.Filename,
		SHA256:     file.SHA256,
		SizeBytes:  file.SizeBytes,
		RecordedAt: file.CreatedAt,
	})
}

// RequestDetections asks a respond worker to run detections.
func (p *Publisher) RequestDetections(ctx context.Context, req *DetectionRequest) error {
	return p.publish(ctx, messaging.SubjectDetectionsRequest, req)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	if p == nil || p.broker == nil {
		return nil
	}
	return messaging.PublishJSON(ctx, p.broker, subject, data)
}
