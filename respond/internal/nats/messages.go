// Package nats publishes respond domain events and consumes detection
// requests over the message broker.
package nats

import "time"

// AlertsCreatedEvent is published to respond.alerts.created after a detection
// run commits new alerts.
type AlertsCreatedEvent struct {
	Count     int            `json:"count"`
	Alerts    []AlertSummary `json:"alerts"`
	CreatedAt time.Time      `json:"created_at"`
}

// AlertSummary is the broker view of one alert.
type AlertSummary struct {
	AlertID  string `json:"alert_id"`
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Severity string `json:"severity"`
	EventID  string `json:"event_id"`
	Source   string `json:"source"`
	Host     string `json:"host,omitempty"`
	User     string `json:"user,omitempty"`
}

// IncidentEvent is published on incident creation, update and deletion.
type IncidentEvent struct {
	IncidentID string    `json:"incident_id"`
	Title      string    `json:"title,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Status     string    `json:"status,omitempty"`
	Change     string    `json:"change"`
	AlertCount int       `json:"alert_count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Incident change kinds carried in IncidentEvent.Change.
const (
	ChangeCreated     = "created"
	ChangeAlertLinked = "alert_linked"
	ChangeAction      = "action_added"
	ChangeClosed      = "closed"
	ChangeDeleted     = "deleted"
)

// EvidenceRecordedEvent is published to respond.evidence.recorded when a new
// packet version is stored.
type EvidenceRecordedEvent struct {
	IncidentID string    `json:"incident_id"`
	EvidenceID string    `json:"evidence_id"`
	Filename   string    `json:"filename"`
	SHA256     string    `json:"sha256"`
	SizeBytes  int64     `json:"size_bytes"`
	RecordedAt time.Time `json:"recorded_at"`
}

// DetectionRequest is consumed from respond.detections.request. Limit <= 0
// selects the configured window.
type DetectionRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
