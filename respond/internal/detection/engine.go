package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/respond/internal/models"
)

// DefaultWindowLimit is the number of most recent events a run scans when the
// caller does not say otherwise.
const DefaultWindowLimit = 500

// Store is the slice of the repository a detection run needs.
type Store interface {
	ListRules(ctx context.Context) ([]*models.Rule, error)
	ListRecentEvents(ctx context.Context, limit int) ([]*models.Event, error)
	ExistingAlertKeys(ctx context.Context, eventIDs []string) (map[models.AlertKey]struct{}, error)

	// InsertAlerts commits the batch atomically and returns only the alerts
	// that were actually written; pairs that already have an alert are
	// skipped by the store.
	InsertAlerts(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error)
}

// Engine runs every rule against a bounded window of recent events.
type Engine struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the alert timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates a detection engine.
func NewEngine(store Store, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:  store,
		logger: logger.With(logging.Component("detection")),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates all rules against the limit most recent events and returns
// the alerts it created. Re-running over the same window creates nothing new.
// Only store failures are returned; in that case no alert from this run is
// persisted.
func (e *Engine) Run(ctx context.Context, limit int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = DefaultWindowLimit
	}

	rules, err := e.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	events, err := e.store.ListRecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if len(rules) == 0 || len(events) == 0 {
		return nil, nil
	}

	eventIDs := make([]string, len(events))
	for i, ev := range events {
		eventIDs[i] = ev.ID
	}
	existing, err := e.store.ExistingAlertKeys(ctx, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing alerts: %w", err)
	}
	if existing == nil {
		existing = make(map[models.AlertKey]struct{})
	}

	var pending []*models.Alert
	for _, ev := range events {
		for _, rule := range rules {
			matched, skip := Evaluate(rule, ev)
			if !matched {
				if skip == SkipAbsent {
					e.logger.DebugContext(ctx, "rule field absent",
						logging.RuleID(rule.ID), logging.EventID(ev.ID))
				}
				continue
			}

			key := models.AlertKey{RuleID: rule.ID, EventID: ev.ID}
			if _, dup := existing[key]; dup {
				continue
			}
			existing[key] = struct{}{}
			pending = append(pending, e.newAlert(rule, ev))
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	created, err := e.store.InsertAlerts(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to insert alerts: %w", err)
	}
	if raced := len(pending) - len(created); raced > 0 {
		e.logger.InfoContext(ctx, "alerts already raised by a concurrent run", logging.Count(raced))
	}
	e.logger.InfoContext(ctx, "detection run complete",
		slog.Int("rules", len(rules)),
		slog.Int("events", len(events)),
		logging.Count(len(created)))
	return created, nil
}

func (e *Engine) newAlert(rule *models.Rule, ev *models.Event) *models.Alert {
	return &models.Alert{
		ID:        e.newID(),
		CreatedAt: e.now(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		EventID:   ev.ID,
		Source:    ev.Source,
		Host:      ev.Host,
		User:      ev.User,
		Summary:   Summary(rule),
	}
}
