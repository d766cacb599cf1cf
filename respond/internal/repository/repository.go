// Package repository persists respond entities.
//
// Every method is one atomic unit of work: a method either applies all of its
// writes or none of them.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/secureops/workbench/respond/internal/models"
)

// ErrNotFound is matched by every entity-specific not-found error.
var ErrNotFound = errors.New("not found")

var (
	ErrRuleNotFound     = fmt.Errorf("rule %w", ErrNotFound)
	ErrEventNotFound    = fmt.Errorf("event %w", ErrNotFound)
	ErrImportNotFound   = fmt.Errorf("import %w", ErrNotFound)
	ErrAlertNotFound    = fmt.Errorf("alert %w", ErrNotFound)
	ErrIncidentNotFound = fmt.Errorf("incident %w", ErrNotFound)

	// ErrRuleInUse is returned when deleting a rule that alerts still reference.
	ErrRuleInUse = errors.New("rule is referenced by alerts")
)

// SortOrder selects chronological or reverse-chronological listing.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// Repository defines the persistence operations of the respond service.
type Repository interface {
	// Rules
	CreateRule(ctx context.Context, rule *models.Rule) error
	ListRules(ctx context.Context) ([]*models.Rule, error)
	DeleteRule(ctx context.Context, id string) error

	// Events and imports
	CreateEvent(ctx context.Context, event *models.Event) error
	ListRecentEvents(ctx context.Context, limit int) ([]*models.Event, error)
	GetEventsByIDs(ctx context.Context, ids []string) (map[string]*models.Event, error)
	CreateImport(ctx context.Context, job *models.ImportJob, events []*models.Event) error
	ListImports(ctx context.Context, limit int) ([]*models.ImportJob, error)
	DeleteImport(ctx context.Context, id string) error

	// Alerts
	ExistingAlertKeys(ctx context.Context, eventIDs []string) (map[models.AlertKey]struct{}, error)
	InsertAlerts(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error)
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error)
	DeleteAlert(ctx context.Context, id string) error

	// Incidents
	CreateIncident(ctx context.Context, inc *models.Incident, alertIDs []string) ([]string, error)
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	ListIncidents(ctx context.Context, limit int) ([]*models.Incident, error)
	DeleteIncident(ctx context.Context, id string) error
	LinkAlert(ctx context.Context, incidentID, alertID string, at time.Time) (models.LinkResult, error)
	ListIncidentAlerts(ctx context.Context, incidentID string) ([]*models.Alert, error)
	CreateAction(ctx context.Context, action *models.IncidentAction) error
	ListIncidentActions(ctx context.Context, incidentID string, order SortOrder) ([]*models.IncidentAction, error)
	CloseIncident(ctx context.Context, id string, at time.Time) (*models.Incident, error)

	// Evidence
	RecordEvidence(ctx context.Context, file *models.EvidenceFile) (bool, error)
	ListEvidence(ctx context.Context, incidentID string) ([]*models.EvidenceFile, error)

	// Utility
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
