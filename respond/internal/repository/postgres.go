package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secureops/workbench/common/database"
	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/payload"
)

// PostgresRepository implements Repository using PostgreSQL.
//
// Uniqueness of (rule_id, event_id) on alerts and of (incident_id, filename,
// sha256) on evidence_files is enforced by unique indexes, so concurrent
// writers cannot produce duplicates even when their existence checks race.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// =============================================================================
// Rules
// =============================================================================

const ruleColumns = `id, created_at, name, severity, mitre, description, match_source, match_field, match_contains`

// CreateRule inserts a rule.
func (r *PostgresRepository) CreateRule(ctx context.Context, rule *models.Rule) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	mitre := rule.Mitre
	if mitre == nil {
		mitre = []string{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rule.ID, rule.CreatedAt, rule.Name, rule.Severity, mitre, rule.Description,
		rule.MatchSource, rule.MatchField, rule.MatchContains)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// ListRules returns every rule, newest first.
func (r *PostgresRepository) ListRules(ctx context.Context) ([]*models.Rule, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		var rule models.Rule
		if err := rows.Scan(&rule.ID, &rule.CreatedAt, &rule.Name, &rule.Severity, &rule.Mitre,
			&rule.Description, &rule.MatchSource, &rule.MatchField, &rule.MatchContains); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule.CreatedAt = rule.CreatedAt.UTC()
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// DeleteRule removes a rule that no alert references.
func (r *PostgresRepository) DeleteRule(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var inUse bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE rule_id = $1)`, id).Scan(&inUse); err != nil {
			return fmt.Errorf("failed to check rule references: %w", err)
		}
		if inUse {
			return ErrRuleInUse
		}

		tag, err := tx.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete rule: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRuleNotFound
		}
		return nil
	})
}

// =============================================================================
// Events and imports
// =============================================================================

const eventColumns = `id, received_at, source, host, username, raw`

// CreateEvent stores a single event.
func (r *PostgresRepository) CreateEvent(ctx context.Context, event *models.Event) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	raw, err := json.Marshal(event.Raw)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	_, err = r.pool.Exec(ctx, `INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.ReceivedAt, event.Source, nullable(event.Host), nullable(event.User), raw)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// ListRecentEvents returns up to limit events, most recently received first.
func (r *PostgresRepository) ListRecentEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY received_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return collectEvents(rows)
}

// GetEventsByIDs fetches the given events in one query, keyed by id. Unknown
// ids are absent from the result.
func (r *PostgresRepository) GetEventsByIDs(ctx context.Context, ids []string) (map[string]*models.Event, error) {
	out := make(map[string]*models.Event, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		out[e.ID] = e
	}
	return out, nil
}

func collectEvents(rows pgx.Rows) ([]*models.Event, error) {
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var (
			e          models.Event
			host, user *string
			raw        []byte
		)
		if err := rows.Scan(&e.ID, &e.ReceivedAt, &e.Source, &host, &user, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		v, err := payload.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode payload of event %s: %w", e.ID, err)
		}
		e.ReceivedAt = e.ReceivedAt.UTC()
		e.Host, e.User, e.Raw = deref(host), deref(user), v
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// CreateImport stores an import job together with all of its events.
func (r *PostgresRepository) CreateImport(ctx context.Context, job *models.ImportJob, events []*models.Event) error {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO import_jobs (id, created_at, filename, sha256, source, host, username, events_ingested)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, job.ID, job.CreatedAt, job.Filename, job.SHA256, job.Source,
			nullable(job.Host), nullable(job.User), job.EventsIngested)
		if err != nil {
			return fmt.Errorf("failed to create import job: %w", err)
		}

		batch := &pgx.Batch{}
		for _, e := range events {
			raw, err := json.Marshal(e.Raw)
			if err != nil {
				return fmt.Errorf("failed to encode event payload: %w", err)
			}
			batch.Queue(`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
				e.ID, e.ReceivedAt, e.Source, nullable(e.Host), nullable(e.User), raw)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert imported events: %w", err)
		}
		return nil
	})
}

// ListImports returns up to limit import jobs, newest first.
func (r *PostgresRepository) ListImports(ctx context.Context, limit int) ([]*models.ImportJob, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id, created_at, filename, sha256, source, host, username, events_ingested
		FROM import_jobs ORDER BY created_at DESC, id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ImportJob
	for rows.Next() {
		var (
			job        models.ImportJob
			host, user *string
		)
		if err := rows.Scan(&job.ID, &job.CreatedAt, &job.Filename, &job.SHA256, &job.Source,
			&host, &user, &job.EventsIngested); err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		job.CreatedAt = job.CreatedAt.UTC()
		job.Host, job.User = deref(host), deref(user)
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating imports: %w", err)
	}
	return jobs, nil
}

// DeleteImport removes an import job record. Its events are retained.
func (r *PostgresRepository) DeleteImport(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM import_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImportNotFound
	}
	return nil
}

// =============================================================================
// Alerts
// =============================================================================

const alertColumns = `id, created_at, rule_id, rule_name, severity, event_id, source, host, username, summary`

// ExistingAlertKeys returns the (rule, event) pairs that already have an alert
// among the given events.
func (r *PostgresRepository) ExistingAlertKeys(ctx context.Context, eventIDs []string) (map[models.AlertKey]struct{}, error) {
	keys := make(map[models.AlertKey]struct{})
	if len(eventIDs) == 0 {
		return keys, nil
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT rule_id, event_id FROM alerts WHERE event_id = ANY($1)`, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k models.AlertKey
		if err := rows.Scan(&k.RuleID, &k.EventID); err != nil {
			return nil, fmt.Errorf("failed to scan alert key: %w", err)
		}
		keys[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert keys: %w", err)
	}
	return keys, nil
}

// InsertAlerts inserts the batch in a single transaction. Alerts whose
// (rule_id, event_id) pair already exists are skipped; the inserted subset is
// returned in input order.
func (r *PostgresRepository) InsertAlerts(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	var inserted []*models.Alert
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		inserted = inserted[:0]
		for _, a := range alerts {
			tag, err := tx.Exec(ctx, `
				INSERT INTO alerts (`+alertColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (rule_id, event_id) DO NOTHING
			`, a.ID, a.CreatedAt, a.RuleID, a.RuleName, a.Severity, a.EventID, a.Source,
				nullable(a.Host), nullable(a.User), a.Summary)
			if err != nil {
				return fmt.Errorf("failed to insert alert: %w", err)
			}
			if tag.RowsAffected() == 1 {
				inserted = append(inserted, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// GetAlert retrieves an alert by id.
func (r *PostgresRepository) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	alerts, err := collectAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, ErrAlertNotFound
	}
	return alerts[0], nil
}

// ListAlerts returns up to limit alerts, newest first.
func (r *PostgresRepository) ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return collectAlerts(rows)
}

func collectAlerts(rows pgx.Rows) ([]*models.Alert, error) {
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var (
			a          models.Alert
			host, user *string
		)
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.RuleID, &a.RuleName, &a.Severity, &a.EventID,
			&a.Source, &host, &user, &a.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		a.Host, a.User = deref(host), deref(user)
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// DeleteAlert removes the alert's incident links and then the alert.
func (r *PostgresRepository) DeleteAlert(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM incident_alerts WHERE alert_id = $1`, id); err != nil {
			return fmt.Errorf("failed to unlink alert: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete alert: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlertNotFound
		}
		return nil
	})
}

// =============================================================================
// Incidents
// =============================================================================

const incidentColumns = `id, created_at, updated_at, title, severity, status, description`

// CreateIncident inserts the incident and links every listed alert that
// exists. Unknown alert ids are skipped. The linked ids are returned.
func (r *PostgresRepository) CreateIncident(ctx context.Context, inc *models.Incident, alertIDs []string) ([]string, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	var linked []string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		linked = linked[:0]
		_, err := tx.Exec(ctx, `INSERT INTO incidents (`+incidentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			inc.ID, inc.CreatedAt, inc.UpdatedAt, inc.Title, inc.Severity, inc.Status, inc.Description)
		if err != nil {
			return fmt.Errorf("failed to create incident: %w", err)
		}

		for _, alertID := range alertIDs {
			tag, err := tx.Exec(ctx, `
				INSERT INTO incident_alerts (incident_id, alert_id, added_at)
				SELECT $1, id, $3 FROM alerts WHERE id = $2
				ON CONFLICT (incident_id, alert_id) DO NOTHING
			`, inc.ID, alertID, inc.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to link alert: %w", err)
			}
			if tag.RowsAffected() == 1 {
				linked = append(linked, alertID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

// GetIncident retrieves an incident by id.
func (r *PostgresRepository) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	return scanIncident(r.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
}

func scanIncident(row pgx.Row) (*models.Incident, error) {
	var inc models.Incident
	err := row.Scan(&inc.ID, &inc.CreatedAt, &inc.UpdatedAt, &inc.Title, &inc.Severity, &inc.Status, &inc.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	inc.CreatedAt = inc.CreatedAt.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	return &inc, nil
}

// ListIncidents returns up to limit incidents, newest first.
func (r *PostgresRepository) ListIncidents(ctx context.Context, limit int) ([]*models.Incident, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+incidentColumns+` FROM incidents ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incidents: %w", err)
	}
	return incidents, nil
}

// lockIncident takes a row lock on the incident for the rest of tx.
func lockIncident(ctx context.Context, tx pgx.Tx, id string) error {
	var found string
	err := tx.QueryRow(ctx, `SELECT id FROM incidents WHERE id = $1 FOR UPDATE`, id).Scan(&found)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrIncidentNotFound
		}
		return fmt.Errorf("failed to lock incident: %w", err)
	}
	return nil
}

// DeleteIncident removes links, actions and evidence records, then the
// incident itself.
func (r *PostgresRepository) DeleteIncident(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockIncident(ctx, tx, id); err != nil {
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM incident_alerts WHERE incident_id = $1`,
			`DELETE FROM incident_actions WHERE incident_id = $1`,
			`DELETE FROM evidence_files WHERE incident_id = $1`,
			`DELETE FROM incidents WHERE id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return fmt.Errorf("failed to delete incident: %w", err)
			}
		}
		return nil
	})
}

// LinkAlert links an alert to an incident and advances updated_at. Linking an
// already linked alert changes nothing and reports LinkResultAlreadyLinked.
func (r *PostgresRepository) LinkAlert(ctx context.Context, incidentID, alertID string, at time.Time) (models.LinkResult, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	var result models.LinkResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockIncident(ctx, tx, incidentID); err != nil {
			return err
		}

		var alertExists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, alertID).Scan(&alertExists); err != nil {
			return fmt.Errorf("failed to check alert: %w", err)
		}
		if !alertExists {
			return ErrAlertNotFound
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO incident_alerts (incident_id, alert_id, added_at) VALUES ($1, $2, $3)
			ON CONFLICT (incident_id, alert_id) DO NOTHING
		`, incidentID, alertID, at)
		if err != nil {
			return fmt.Errorf("failed to link alert: %w", err)
		}
		if tag.RowsAffected() == 0 {
			result = models.LinkResultAlreadyLinked
			return nil
		}

		if _, err := tx.Exec(ctx, `UPDATE incidents SET updated_at = $2 WHERE id = $1`, incidentID, at); err != nil {
			return fmt.Errorf("failed to touch incident: %w", err)
		}
		result = models.LinkResultLinked
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// ListIncidentAlerts returns the alerts linked to an incident, oldest first.
func (r *PostgresRepository) ListIncidentAlerts(ctx context.Context, incidentID string) ([]*models.Alert, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.created_at, a.rule_id, a.rule_name, a.severity, a.event_id, a.source, a.host, a.username, a.summary
		FROM alerts a
		JOIN incident_alerts ia ON ia.alert_id = a.id
		WHERE ia.incident_id = $1
		ORDER BY a.created_at ASC, a.id ASC
	`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incident alerts: %w", err)
	}
	return collectAlerts(rows)
}

// CreateAction appends an investigation log entry and advances the
// incident's updated_at to the action's creation time.
func (r *PostgresRepository) CreateAction(ctx context.Context, action *models.IncidentAction) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	var details []byte
	if !action.Details.IsNull() {
		var err error
		if details, err = json.Marshal(action.Details); err != nil {
			return fmt.Errorf("failed to encode action details: %w", err)
		}
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockIncident(ctx, tx, action.IncidentID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO incident_actions (id, incident_id, created_at, actor, action_type, summary, details)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, action.ID, action.IncidentID, action.CreatedAt, nullable(action.Actor), action.ActionType,
			action.Summary, details)
		if err != nil {
			return fmt.Errorf("failed to create action: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE incidents SET updated_at = $2 WHERE id = $1`,
			action.IncidentID, action.CreatedAt); err != nil {
			return fmt.Errorf("failed to touch incident: %w", err)
		}
		return nil
	})
}

// ListIncidentActions returns the investigation log of an incident.
func (r *PostgresRepository) ListIncidentActions(ctx context.Context, incidentID string, order SortOrder) ([]*models.IncidentAction, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT id, incident_id, created_at, actor, action_type, summary, details
		FROM incident_actions WHERE incident_id = $1
		ORDER BY created_at ASC, id ASC`
	if order == Descending {
		query = `
		SELECT id, incident_id, created_at, actor, action_type, summary, details
		FROM incident_actions WHERE incident_id = $1
		ORDER BY created_at DESC, id DESC`
	}

	rows, err := r.pool.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.IncidentAction
	for rows.Next() {
		var (
			a       models.IncidentAction
			actor   *string
			details []byte
		)
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.CreatedAt, &actor, &a.ActionType, &a.Summary, &details); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		if details != nil {
			v, err := payload.Decode(details)
			if err != nil {
				return nil, fmt.Errorf("failed to decode details of action %s: %w", a.ID, err)
			}
			a.Details = v
		}
		a.CreatedAt = a.CreatedAt.UTC()
		a.Actor = deref(actor)
		actions = append(actions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return actions, nil
}

// CloseIncident moves an open incident to closed. Closing a closed incident
// returns it unchanged.
func (r *PostgresRepository) CloseIncident(ctx context.Context, id string, at time.Time) (*models.Incident, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	var inc *models.Incident
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockIncident(ctx, tx, id); err != nil {
			return err
		}
		var err error
		inc, err = scanIncident(tx.QueryRow(ctx, `
			UPDATE incidents
			SET status = $2, updated_at = CASE WHEN status = $2 THEN updated_at ELSE $3 END
			WHERE id = $1
			RETURNING `+incidentColumns, id, models.IncidentStatusClosed, at))
		return err
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// =============================================================================
// Evidence
// =============================================================================

// RecordEvidence inserts the evidence row unless one with the same
// (incident_id, filename, sha256) exists. It reports whether a row was added.
func (r *PostgresRepository) RecordEvidence(ctx context.Context, file *models.EvidenceFile) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	var recorded bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1)`, file.IncidentID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check incident: %w", err)
		}
		if !exists {
			return ErrIncidentNotFound
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO evidence_files (id, incident_id, created_at, filename, content_type, sha256, size_bytes, storage_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (incident_id, filename, sha256) DO NOTHING
		`, file.ID, file.IncidentID, file.CreatedAt, file.Filename, file.ContentType, file.SHA256,
			file.SizeBytes, file.StorageKey)
		if err != nil {
			return fmt.Errorf("failed to record evidence: %w", err)
		}
		recorded = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// ListEvidence returns the evidence manifest of an incident, newest first.
func (r *PostgresRepository) ListEvidence(ctx context.Context, incidentID string) ([]*models.EvidenceFile, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id, incident_id, created_at, filename, content_type, sha256, size_bytes, storage_key
		FROM evidence_files WHERE incident_id = $1
		ORDER BY created_at DESC, id DESC
	`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	var files []*models.EvidenceFile
	for rows.Next() {
		var f models.EvidenceFile
		if err := rows.Scan(&f.ID, &f.IncidentID, &f.CreatedAt, &f.Filename, &f.ContentType, &f.SHA256,
			&f.SizeBytes, &f.StorageKey); err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		f.CreatedAt = f.CreatedAt.UTC()
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evidence: %w", err)
	}
	return files, nil
}

// =============================================================================
// Utility
// =============================================================================

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
