// Package models provides data models for the respond service.
package models

import (
	"time"

	"github.com/secureops/workbench/common/messaging"
	"github.com/secureops/workbench/respond/internal/payload"
)

// Severity levels shared by rules, alerts and incidents.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Incident lifecycle states. Closed is terminal.
const (
	IncidentStatusOpen   = "open"
	IncidentStatusClosed = "closed"
)

// Investigation log action types.
const (
	ActionTypeNote        = "note"
	ActionTypeContainment = "containment"
	ActionTypeEradication = "eradication"
	ActionTypeRecovery    = "recovery"
	ActionTypeComms       = "comms"
)

// MatchSourceAny makes a rule apply to events from every source.
const MatchSourceAny = "*"

// =============================================================================
// Telemetry
// =============================================================================

// Event is one ingested telemetry record. Immutable once stored.
type Event struct {
	ID         string        `json:"id"`
	ReceivedAt time.Time     `json:"received_at"`
	Source     string        `json:"source"`
	Host       string        `json:"host,omitempty"`
	User       string        `json:"user,omitempty"`
	Raw        payload.Value `json:"raw"`
}

// ImportJob records one batch ingestion and the hash of its raw bytes.
type ImportJob struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Filename       string    `json:"filename"`
	SHA256         string    `json:"sha256"`
	Source         string    `json:"source"`
	Host           string    `json:"host,omitempty"`
	User           string    `json:"user,omitempty"`
	EventsIngested int       `json:"events_ingested"`
}

// =============================================================================
// Detection
// =============================================================================

// Rule is a single-field substring match. Rules are never updated in place.
type Rule struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Name          string    `json:"name"`
	Severity      string    `json:"severity"`
	Mitre         []string  `json:"mitre"`
	Description   string    `json:"description"`
	MatchSource   string    `json:"match_source"`
	MatchField    string    `json:"match_field"`
	MatchContains string    `json:"match_contains"`
}

// Alert is the result of one rule matching one event. RuleName and Severity
// are snapshots taken at match time.
type Alert struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	RuleID    string    `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	Severity  string    `json:"severity"`
	EventID   string    `json:"event_id"`
	Source    string    `json:"source"`
	Host      string    `json:"host,omitempty"`
	User      string    `json:"user,omitempty"`
	Summary   string    `json:"summary"`
}

// AlertKey identifies the (rule, event) pair an alert was raised for.
type AlertKey struct {
	RuleID  string
	EventID string
}

// Key returns the dedup key of the alert.
func (a *Alert) Key() AlertKey {
	return AlertKey{RuleID: a.RuleID, EventID: a.EventID}
}

// =============================================================================
// Incidents
// =============================================================================

// Incident groups alerts under investigation.
type Incident struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Title       string    `json:"title"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
}

// IsClosed reports whether the incident reached its terminal state.
func (i *Incident) IsClosed() bool {
	return i.Status == IncidentStatusClosed
}

// IncidentAlert links an alert to an incident.
type IncidentAlert struct {
	IncidentID string    `json:"incident_id"`
	AlertID    string    `json:"alert_id"`
	AddedAt    time.Time `json:"added_at"`
}

// IncidentAction is an append-only investigation log entry.
type IncidentAction struct {
	ID         string        `json:"id"`
	IncidentID string        `json:"incident_id"`
	CreatedAt  time.Time     `json:"created_at"`
	Actor      string        `json:"actor,omitempty"`
	ActionType string        `json:"action_type"`
	Summary    string        `json:"summary"`
	Details    payload.Value `json:"details"`
}

// EvidenceFile is one content-addressed artifact recorded against an incident.
type EvidenceFile struct {
	ID          string    `json:"id"`
	IncidentID  string    `json:"incident_id"`
	CreatedAt   time.Time `json:"created_at"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SHA256      string    `json:"sha256"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
}

// LinkResult is the outcome of linking an alert to an incident.
type LinkResult string

const (
	LinkResultLinked        LinkResult = "linked"
	LinkResultAlreadyLinked LinkResult = "already-linked"
)

// =============================================================================
// Requests
// =============================================================================

// CreateRuleRequest is the API request for creating a rule.
type CreateRuleRequest struct {
	Name          string   `json:"name" yaml:"name" validate:"required,max=200"`
	Severity      string   `json:"severity" yaml:"severity" validate:"omitempty,oneof=low medium high critical"`
	Mitre         []string `json:"mitre" yaml:"mitre"`
	Description   string   `json:"description" yaml:"description"`
	MatchSource   string   `json:"match_source" yaml:"match_source"`
	MatchField    string   `json:"match_field" yaml:"match_field" validate:"required"`
	MatchContains string   `json:"match_contains" yaml:"match_contains"`
}

// IngestEventRequest carries a single event pushed by a caller.
type IngestEventRequest struct {
	Source string        `json:"source" validate:"required"`
	Host   string        `json:"host,omitempty"`
	User   string        `json:"user,omitempty"`
	Raw    payload.Value `json:"raw"`
}

// ImportRequest describes a bulk JSONL upload.
type ImportRequest struct {
	Filename string `json:"filename" validate:"required"`
	Source   string `json:"source" validate:"required"`
	Host     string `json:"host,omitempty"`
	User     string `json:"user,omitempty"`
}

// CreateIncidentRequest is the API request for opening an incident.
type CreateIncidentRequest struct {
	Title       string   `json:"title" validate:"required,max=300"`
	Severity    string   `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Description string   `json:"description"`
	AlertIDs    []string `json:"alert_ids"`
}

// LinkAlertRequest links an existing alert to an incident.
type LinkAlertRequest struct {
	AlertID string `json:"alert_id" validate:"required"`
}

// CreateActionRequest appends an entry to the investigation log.
type CreateActionRequest struct {
	Actor      string        `json:"actor,omitempty"`
	ActionType string        `json:"action_type" validate:"omitempty,oneof=note containment eradication recovery comms"`
	Summary    string        `json:"summary" validate:"required"`
	Details    payload.Value `json:"details"`
}

// CloudTrailSyncRequest asks for the last Minutes of CloudTrail activity.
type CloudTrailSyncRequest struct {
	Minutes int    `json:"minutes" validate:"min=1,max=1440"`
	Region  string `json:"region,omitempty"`
}

// =============================================================================
// Responses
// =============================================================================

// DetectionRunResponse reports the outcome of a detection run. Skipped is
// set when another run held the detection lock and this one did nothing.
type DetectionRunResponse struct {
	AlertsCreated int  `json:"alerts_created"`
	Skipped       bool `json:"skipped,omitempty"`
}

// LinkAlertResponse reports the outcome of a link request.
type LinkAlertResponse struct {
	Status LinkResult `json:"status"`
}

// CloudTrailSyncResponse reports the outcome of a CloudTrail pull.
type CloudTrailSyncResponse struct {
	EventsIngested int       `json:"events_ingested"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Region         string    `json:"region"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                  `json:"status"`
	Service   string                  `json:"service"`
	Messaging *messaging.HealthStatus `json:"messaging,omitempty"`
}
