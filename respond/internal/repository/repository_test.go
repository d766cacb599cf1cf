package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/payload"
)

// runRepositoryContract exercises the behavior every Repository must share.
// newRepo must return an empty repository.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("rules newest first and delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		older := seedRule(t, repo, base)
		newer := seedRule(t, repo, base.Add(time.Minute))

		rules, err := repo.ListRules(ctx)
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, newer.ID, rules[0].ID)
		assert.Equal(t, older.ID, rules[1].ID)
		assert.Equal(t, []string{"T1078"}, rules[0].Mitre)

		require.NoError(t, repo.DeleteRule(ctx, older.ID))
		assert.ErrorIs(t, repo.DeleteRule(ctx, older.ID), ErrNotFound)
	})

	t.Run("rule referenced by alert cannot be deleted", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		rule := seedRule(t, repo, base)
		event := seedEvent(t, repo, base, payload.Mapping())
		_, err := repo.InsertAlerts(ctx, []*models.Alert{newAlert(rule, event, base)})
		require.NoError(t, err)

		assert.ErrorIs(t, repo.DeleteRule(ctx, rule.ID), ErrRuleInUse)
	})

	t.Run("events keep payload order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		raw, err := payload.Decode([]byte(`{"z": 1, "a": {"b": [true, null]}}`))
		require.NoError(t, err)
		first := seedEvent(t, repo, base, raw)
		second := seedEvent(t, repo, base.Add(time.Second), payload.Mapping())

		events, err := repo.ListRecentEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, second.ID, events[0].ID)
		assert.Equal(t, `{"z": 1, "a": {"b": [true, null]}}`, events[1].Raw.Text())
		assert.Equal(t, "web-1", events[1].Host)

		limited, err := repo.ListRecentEvents(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		byID, err := repo.GetEventsByIDs(ctx, []string{first.ID, "missing"})
		require.NoError(t, err)
		assert.Len(t, byID, 1)
		assert.Contains(t, byID, first.ID)
	})

	t.Run("import stores job and events together", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		job := &models.ImportJob{ID: newID(), CreatedAt: base, Filename: "a.jsonl", SHA256: "abc", Source: "syslog", EventsIngested: 2}
		events := []*models.Event{
			{ID: newID(), ReceivedAt: base, Source: "syslog", Raw: payload.Mapping(payload.Field("n", payload.Int(1)))},
			{ID: newID(), ReceivedAt: base, Source: "syslog", Raw: payload.Mapping(payload.Field("n", payload.Int(2)))},
		}
		require.NoError(t, repo.CreateImport(ctx, job, events))

		jobs, err := repo.ListImports(ctx, 50)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, 2, jobs[0].EventsIngested)

		stored, err := repo.ListRecentEvents(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, stored, 2)

		require.NoError(t, repo.DeleteImport(ctx, job.ID))
		assert.ErrorIs(t, repo.DeleteImport(ctx, job.ID), ErrImportNotFound)

		stored, err = repo.ListRecentEvents(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, stored, 2, "events survive import deletion")
	})

	t.Run("insert alerts skips existing pairs", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		rule := seedRule(t, repo, base)
		event := seedEvent(t, repo, base, payload.Mapping())

		inserted, err := repo.InsertAlerts(ctx, []*models.Alert{newAlert(rule, event, base)})
		require.NoError(t, err)
		assert.Len(t, inserted, 1)

		inserted, err = repo.InsertAlerts(ctx, []*models.Alert{newAlert(rule, event, base.Add(time.Second))})
		require.NoError(t, err)
		assert.Empty(t, inserted)

		keys, err := repo.ExistingAlertKeys(ctx, []string{event.ID})
		require.NoError(t, err)
		assert.Contains(t, keys, models.AlertKey{RuleID: rule.ID, EventID: event.ID})

		alerts, err := repo.ListAlerts(ctx, 100)
		require.NoError(t, err)
		assert.Len(t, alerts, 1)
	})

	t.Run("create incident links known alerts only", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		alert := seedAlert(t, repo, base)
		inc := newIncident(base)
		linked, err := repo.CreateIncident(ctx, inc, []string{alert.ID, "unknown", alert.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{alert.ID}, linked)

		alerts, err := repo.ListIncidentAlerts(ctx, inc.ID)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, alert.ID, alerts[0].ID)
	})

	t.Run("link alert is idempotent and touches incident once", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		alert := seedAlert(t, repo, base)
		inc := newIncident(base)
		_, err := repo.CreateIncident(ctx, inc, nil)
		require.NoError(t, err)

		first := base.Add(time.Hour)
		res, err := repo.LinkAlert(ctx, inc.ID, alert.ID, first)
		require.NoError(t, err)
		assert.Equal(t, models.LinkResultLinked, res)

		res, err = repo.LinkAlert(ctx, inc.ID, alert.ID, first.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.LinkResultAlreadyLinked, res)

		got, err := repo.GetIncident(ctx, inc.ID)
		require.NoError(t, err)
		assert.True(t, first.Equal(got.UpdatedAt))

		alerts, err := repo.ListIncidentAlerts(ctx, inc.ID)
		require.NoError(t, err)
		assert.Len(t, alerts, 1)

		_, err = repo.LinkAlert(ctx, "missing", alert.ID, first)
		assert.ErrorIs(t, err, ErrIncidentNotFound)
		_, err = repo.LinkAlert(ctx, inc.ID, "missing", first)
		assert.ErrorIs(t, err, ErrAlertNotFound)
	})

	t.Run("actions ordered and touch incident", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		inc := newIncident(base)
		_, err := repo.CreateIncident(ctx, inc, nil)
		require.NoError(t, err)

		details := payload.Mapping(payload.Field("host", payload.String("web-1")))
		a1 := &models.IncidentAction{ID: newID(), IncidentID: inc.ID, CreatedAt: base.Add(time.Minute), ActionType: "note", Summary: "first", Details: details}
		a2 := &models.IncidentAction{ID: newID(), IncidentID: inc.ID, CreatedAt: base.Add(2 * time.Minute), Actor: "analyst", ActionType: "containment", Summary: "second"}
		require.NoError(t, repo.CreateAction(ctx, a1))
		require.NoError(t, repo.CreateAction(ctx, a2))

		asc, err := repo.ListIncidentActions(ctx, inc.ID, Ascending)
		require.NoError(t, err)
		require.Len(t, asc, 2)
		assert.Equal(t, "first", asc[0].Summary)
		assert.Equal(t, `{"host": "web-1"}`, asc[0].Details.Text())
		assert.True(t, asc[1].Details.IsNull())

		desc, err := repo.ListIncidentActions(ctx, inc.ID, Descending)
		require.NoError(t, err)
		assert.Equal(t, "second", desc[0].Summary)
		assert.Equal(t, "analyst", desc[0].Actor)

		got, err := repo.GetIncident(ctx, inc.ID)
		require.NoError(t, err)
		assert.True(t, a2.CreatedAt.Equal(got.UpdatedAt))

		err = repo.CreateAction(ctx, &models.IncidentAction{ID: newID(), IncidentID: "missing", CreatedAt: base, ActionType: "note", Summary: "x"})
		assert.ErrorIs(t, err, ErrIncidentNotFound)
	})

	t.Run("close is terminal", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		inc := newIncident(base)
		_, err := repo.CreateIncident(ctx, inc, nil)
		require.NoError(t, err)

		closedAt := base.Add(time.Hour)
		got, err := repo.CloseIncident(ctx, inc.ID, closedAt)
		require.NoError(t, err)
		assert.Equal(t, models.IncidentStatusClosed, got.Status)
		assert.True(t, closedAt.Equal(got.UpdatedAt))

		again, err := repo.CloseIncident(ctx, inc.ID, closedAt.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, closedAt.Equal(again.UpdatedAt))

		_, err = repo.CloseIncident(ctx, "missing", closedAt)
		assert.ErrorIs(t, err, ErrIncidentNotFound)
	})

	t.Run("delete incident cascades", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		a1 := seedAlert(t, repo, base)
		a2 := seedAlert(t, repo, base.Add(time.Second))
		inc := newIncident(base)
		_, err := repo.CreateIncident(ctx, inc, []string{a1.ID, a2.ID})
		require.NoError(t, err)
		require.NoError(t, repo.CreateAction(ctx, &models.IncidentAction{ID: newID(), IncidentID: inc.ID, CreatedAt: base, ActionType: "note", Summary: "x"}))

		require.NoError(t, repo.DeleteIncident(ctx, inc.ID))

		_, err = repo.GetIncident(ctx, inc.ID)
		assert.ErrorIs(t, err, ErrIncidentNotFound)
		links, err := repo.ListIncidentAlerts(ctx, inc.ID)
		require.NoError(t, err)
		assert.Empty(t, links)
		actions, err := repo.ListIncidentActions(ctx, inc.ID, Ascending)
		require.NoError(t, err)
		assert.Empty(t, actions)

		_, err = repo.GetAlert(ctx, a1.ID)
		assert.NoError(t, err, "alerts outlive the incident")
		assert.ErrorIs(t, repo.DeleteIncident(ctx, inc.ID), ErrIncidentNotFound)
	})

	t.Run("delete alert removes links", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		alert := seedAlert(t, repo, base)
		inc := newIncident(base)
		_, err := repo.CreateIncident(ctx, inc, []string{alert.ID})
		require.NoError(t, err)

		require.NoError(t, repo.DeleteAlert(ctx, alert.ID))
		links, err := repo.ListIncidentAlerts(ctx, inc.ID)
		require.NoError(t, err)
		assert.Empty(t, links)
		assert.ErrorIs(t, repo.DeleteAlert(ctx, alert.ID), ErrAlertNotFound)
	})

	t.Run("evidence recorded once per content", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		inc := newIncident(base)
		_, err := repo.CreateIncident(ctx, inc, nil)
		require.NoError(t, err)

		file := func(sha string, at time.Time) *models.EvidenceFile {
			return &models.EvidenceFile{
				ID: newID(), IncidentID: inc.ID, CreatedAt: at, Filename: inc.ID + "/incident-packet.json",
				ContentType: "application/json", SHA256: sha, SizeBytes: 10, StorageKey: inc.ID + "/" + sha,
			}
		}

		recorded, err := repo.RecordEvidence(ctx, file("aaa", base))
		require.NoError(t, err)
		assert.True(t, recorded)

		recorded, err = repo.RecordEvidence(ctx, file("aaa", base.Add(time.Minute)))
		require.NoError(t, err)
		assert.False(t, recorded)

		recorded, err = repo.RecordEvidence(ctx, file("bbb", base.Add(2*time.Minute)))
		require.NoError(t, err)
		assert.True(t, recorded)

		files, err := repo.ListEvidence(ctx, inc.ID)
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "bbb", files[0].SHA256)
		assert.Equal(t, "aaa", files[1].SHA256)

		_, err = repo.RecordEvidence(ctx, &models.EvidenceFile{ID: newID(), IncidentID: "missing", CreatedAt: base, SHA256: "x"})
		assert.ErrorIs(t, err, ErrIncidentNotFound)
	})
}

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func seedRule(t *testing.T, repo Repository, at time.Time) *models.Rule {
	t.Helper()
	rule := &models.Rule{
		ID: newID(), CreatedAt: at, Name: "root login", Severity: "high", Mitre: []string{"T1078"},
		MatchSource: "*", MatchField: "userIdentity.userName", MatchContains: "root",
	}
	require.NoError(t, repo.CreateRule(context.Background(), rule))
	return rule
}

func seedEvent(t *testing.T, repo Repository, at time.Time, raw payload.Value) *models.Event {
	t.Helper()
	event := &models.Event{ID: newID(), ReceivedAt: at, Source: "aws-cloudtrail", Host: "web-1", Raw: raw}
	require.NoError(t, repo.CreateEvent(context.Background(), event))
	return event
}

func newAlert(rule *models.Rule, event *models.Event, at time.Time) *models.Alert {
	return &models.Alert{
		ID: newID(), CreatedAt: at, RuleID: rule.ID, RuleName: rule.Name, Severity: rule.Severity,
		EventID: event.ID, Source: event.Source, Host: event.Host, Summary: "matched",
	}
}

func seedAlert(t *testing.T, repo Repository, at time.Time) *models.Alert {
	t.Helper()
	rule := seedRule(t, repo, at)
	event := seedEvent(t, repo, at, payload.Mapping())
	alert := newAlert(rule, event, at)
	inserted, err := repo.InsertAlerts(context.Background(), []*models.Alert{alert})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	return alert
}

func newIncident(at time.Time) *models.Incident {
	return &models.Incident{
		ID: newID(), CreatedAt: at, UpdatedAt: at, Title: "Suspicious root usage",
		Severity: "medium", Status: models.IncidentStatusOpen,
	}
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Repository {
		return NewMemoryRepository()
	})
}
