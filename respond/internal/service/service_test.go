package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/common/messaging"
	"github.com/secureops/workbench/respond/internal/connectors/cloudtrail"
	"github.com/secureops/workbench/respond/internal/evidence"
	"github.com/secureops/workbench/respond/internal/ingest"
	"github.com/secureops/workbench/respond/internal/lock"
	"github.com/secureops/workbench/respond/internal/models"
	respondnats "github.com/secureops/workbench/respond/internal/nats"
	"github.com/secureops/workbench/respond/internal/payload"
	"github.com/secureops/workbench/respond/internal/report"
	"github.com/secureops/workbench/respond/internal/repository"
)

type fixture struct {
	svc   *Service
	repo  *repository.MemoryRepository
	blobs *evidence.FileStore
	bus   *messaging.MemoryPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	blobs, err := evidence.NewFileStore(t.TempDir())
	require.NoError(t, err)
	bus := messaging.NewMemoryPublisher()

	var mu sync.Mutex
	clock := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	seq := 0
	base := []Option{
		WithLogger(logging.Discard()),
		WithPublisher(respondnats.NewPublisher(bus)),
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		}),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%04d", seq)
		}),
	}
	svc := NewService(repo, blobs, append(base, opts...)...)
	return &fixture{svc: svc, repo: repo, blobs: blobs, bus: bus}
}

func mustDecode(t *testing.T, s string) payload.Value {
	t.Helper()
	v, err := payload.Decode([]byte(s))
	require.NoError(t, err)
	return v
}

func TestCreateRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, err := f.svc.CreateRule(ctx, &models.CreateRuleRequest{Name: " Root ", MatchField: "user", MatchContains: "root"})
	require.NoError(t, err)
	assert.Equal(t, "Root", rule.Name)
	assert.Equal(t, models.SeverityMedium, rule.Severity)
	assert.Equal(t, models.MatchSourceAny, rule.MatchSource)
	assert.Equal(t, []string{}, rule.Mitre)

	tests := []struct {
		name string
		req  models.CreateRuleRequest
		msg  string
	}{
		{"missing name", models.CreateRuleRequest{MatchField: "a"}, "name is required"},
		{"missing field", models.CreateRuleRequest{Name: "x"}, "match_field is required"},
		{"bad severity", models.CreateRuleRequest{Name: "x", MatchField: "a", Severity: "urgent"}, "severity must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateRule(ctx, &tt.req)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	rules, err := f.svc.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestLoadRules_ValidatesBeforeStoring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LoadRules(ctx, []models.CreateRuleRequest{
		{Name: "ok", MatchField: "a"},
		{Name: "bad", MatchField: "a", Severity: "nope"},
	})
	require.ErrorIs(t, err, ErrValidation)

	rules, err := f.svc.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	created, err := f.svc.LoadRules(ctx, []models.CreateRuleRequest{{Name: "a", MatchField: "x"}, {Name: "b", MatchField: "y"}})
	require.NoError(t, err)
	assert.Len(t, created, 2)
}

func TestIngestAndListEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.IngestEvent(ctx, &models.IngestEventRequest{Raw: mustDecode(t, `{}`)})
	require.ErrorIs(t, err, ErrValidation)

	for i := 0; i < 3; i++ {
		_, err := f.svc.IngestEvent(ctx, &models.IngestEventRequest{Source: "auth", Raw: mustDecode(t, fmt.Sprintf(`{"n":%d}`, i))})
		require.NoError(t, err)
	}
	events, err := f.svc.ListEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].ReceivedAt.After(events[1].ReceivedAt))
}

func TestImportJSONL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := []byte("{\"message\":\"a\"}\nbroken\n\n{\"message\":\"b\"}\n")

	job, err := f.svc.ImportJSONL(ctx, &models.ImportRequest{Filename: "../auth.jsonl", Source: "auth", Host: "web-1"}, data)
	require.NoError(t, err)
	assert.Equal(t, 2, job.EventsIngested)
	assert.Equal(t, "auth.jsonl", job.Filename)
	assert.Len(t, job.SHA256, 64)

	stored, err := f.blobs.Get(ctx, "imports/"+job.ID+"/auth.jsonl")
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	blob, err := f.svc.ImportBlob(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, data, blob)

	events, err := f.svc.ListEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "auth", ev.Source)
		assert.Equal(t, "web-1", ev.Host)
	}

	_, err = f.svc.ImportJSONL(ctx, &models.ImportRequest{}, data)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.svc.DeleteImport(ctx, job.ID))
	assert.ErrorIs(t, f.svc.DeleteImport(ctx, job.ID), repository.ErrNotFound)
	events, err = f.svc.ListEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func seedDetection(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.CreateRule(ctx, &models.CreateRuleRequest{
		Name: "Root user", Severity: models.SeverityHigh,
		MatchSource: "aws-cloudtrail", MatchField: "userIdentity.userName", MatchContains: "ROOT",
	})
	require.NoError(t, err)
	for _, raw := range []string{
		`{"userIdentity":{"userName":"rootuser"},"src_ip":"10.0.0.5","message":"console login"}`,
		`{"userIdentity":{"userName":"alice"}}`,
		`{"other":1}`,
	} {
		_, err := f.svc.IngestEvent(ctx, &models.IngestEventRequest{Source: "aws-cloudtrail", Host: "acct-1", Raw: mustDecode(t, raw)})
		require.NoError(t, err)
	}
}

func TestRunDetections_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDetection(t, f)

	resp, err := f.svc.RunDetections(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.AlertsCreated)

	resp, err = f.svc.RunDetections(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.AlertsCreated)

	alerts, err := f.svc.ListAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Root user: userIdentity.userName matched 'ROOT'", alerts[0].Summary)

	assert.Equal(t, []string{messaging.SubjectAlertsCreated}, f.bus.Subjects())
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return nil, lock.ErrLockHeld
}

func TestRunDetections_LockHeld(t *testing.T) {
	f := newFixture(t, WithLocker(busyLocker{}))
	seedDetection(t, f)

	resp, err := f.svc.RunDetections(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, &models.DetectionRunResponse{Skipped: true}, resp)

	alerts, err := f.svc.ListAlerts(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Empty(t, f.bus.Subjects())
}

func TestIncidentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDetection(t, f)
	_, err := f.svc.RunDetections(ctx, 0)
	require.NoError(t, err)
	alerts, err := f.svc.ListAlerts(ctx, 0)
	require.NoError(t, err)
	alertID := alerts[0].ID

	_, _, err = f.svc.CreateIncident(ctx, &models.CreateIncidentRequest{})
	require.ErrorIs(t, err, ErrValidation)

	inc, linked, err := f.svc.CreateIncident(ctx, &models.CreateIncidentRequest{
		Title: "Root activity", AlertIDs: []string{"missing", alertID},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, inc.Severity)
	assert.Equal(t, models.IncidentStatusOpen, inc.Status)
	assert.Equal(t, []string{alertID}, linked)

	res, err := f.svc.LinkAlert(ctx, inc.ID, &models.LinkAlertRequest{AlertID: alertID})
	require.NoError(t, err)
	assert.Equal(t, models.LinkResultAlreadyLinked, res)

	_, err = f.svc.LinkAlert(ctx, inc.ID, &models.LinkAlertRequest{AlertID: "nope"})
	assert.ErrorIs(t, err, repository.ErrAlertNotFound)
	_, err = f.svc.LinkAlert(ctx, "nope", &models.LinkAlertRequest{AlertID: alertID})
	assert.ErrorIs(t, err, repository.ErrIncidentNotFound)

	_, err = f.svc.AddAction(ctx, inc.ID, &models.CreateActionRequest{Summary: "x", ActionType: "dance"})
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.AddAction(ctx, inc.ID, &models.CreateActionRequest{Summary: "x", Details: payload.String("s")})
	require.ErrorIs(t, err, ErrValidation)

	action, err := f.svc.AddAction(ctx, inc.ID, &models.CreateActionRequest{Summary: "isolated host", Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionTypeNote, action.ActionType)

	actions, err := f.svc.ListActions(ctx, inc.ID)
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	got, err := f.svc.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(inc.UpdatedAt))

	closed, err := f.svc.CloseIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.True(t, closed.IsClosed())
	again, err := f.svc.CloseIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, closed.UpdatedAt, again.UpdatedAt)

	assert.Equal(t, []string{
		messaging.SubjectAlertsCreated,
		messaging.SubjectIncidentsCreated,
		messaging.SubjectIncidentsUpdated,
		messaging.SubjectIncidentsUpdated,
	}, f.bus.Subjects())

	require.NoError(t, f.svc.DeleteIncident(ctx, inc.ID))
	_, err = f.svc.GetIncident(ctx, inc.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.svc.ListActions(ctx, inc.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, messaging.SubjectIncidentsDeleted, f.bus.Subjects()[4])
}

func TestExportReport_EvidenceHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedDetection(t, f)
	_, err := f.svc.RunDetections(ctx, 0)
	require.NoError(t, err)
	alerts, err := f.svc.ListAlerts(ctx, 0)
	require.NoError(t, err)
	inc, _, err := f.svc.CreateIncident(ctx, &models.CreateIncidentRequest{Title: "Root", AlertIDs: []string{alerts[0].ID}})
	require.NoError(t, err)

	doc, err := f.svc.ExportReport(ctx, inc.ID, report.FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "incident-report.md", doc.Filename)
	body := string(doc.Body)
	assert.Contains(t, body, "- **IPs:** 10.0.0.5")
	assert.Equal(t, 1, strings.Count(body, "incident-packet.json (sha256="))

	_, err = f.svc.ExportReport(ctx, inc.ID, report.FormatPDF)
	require.NoError(t, err)
	files, err := f.svc.ListEvidence(ctx, inc.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1, "unchanged packet must not add evidence")

	_, err = f.svc.AddAction(ctx, inc.ID, &models.CreateActionRequest{Summary: "contained", ActionType: models.ActionTypeContainment})
	require.NoError(t, err)
	doc, err = f.svc.ExportReport(ctx, inc.ID, report.FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(doc.Body), "incident-packet.json (sha256="))

	files, err = f.svc.ListEvidence(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.NotEqual(t, files[0].SHA256, files[1].SHA256)

	file, data, err := f.svc.EvidenceContent(ctx, inc.ID, files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, files[0].SizeBytes, int64(len(data)))
	assert.Equal(t, files[0].ID, file.ID)

	_, _, err = f.svc.EvidenceContent(ctx, inc.ID, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.ExportReport(ctx, "missing", report.FormatMarkdown)
	assert.ErrorIs(t, err, repository.ErrIncidentNotFound)

	recorded := 0
	for _, s := range f.bus.Subjects() {
		if s == messaging.SubjectEvidenceRecorded {
			recorded++
		}
	}
	assert.Equal(t, 2, recorded)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bus.Close())

	_, _, err := f.svc.CreateIncident(context.Background(), &models.CreateIncidentRequest{Title: "still works"})
	assert.NoError(t, err)
}

type fakePuller struct {
	region string
	batch  *ingest.Batch
	err    error
}

func (p *fakePuller) Pull(context.Context, int) (*ingest.Batch, cloudtrail.Window, error) {
	start := time.Date(2025, 3, 14, 8, 45, 0, 0, time.UTC)
	return p.batch, cloudtrail.Window{Start: start, End: start.Add(15 * time.Minute)}, p.err
}

func (p *fakePuller) Region() string { return p.region }

func TestSyncCloudTrail(t *testing.T) {
	ctx := context.Background()

	_, err := newFixture(t).svc.SyncCloudTrail(ctx, &models.CloudTrailSyncRequest{})
	assert.ErrorIs(t, err, ErrConnectorDisabled)

	raw := mustDecode(t, `{"cloudtrail":{"userIdentity":{"userName":"bob"}}}`)
	data, err := ingest.EncodeJSONL([]payload.Value{raw})
	require.NoError(t, err)
	batch := ingest.NewBatch("cloudtrail_eu-west-1_x.jsonl", data, ingest.Tags{Source: cloudtrail.Source},
		[]ingest.Record{{User: "bob", Raw: raw}})

	var gotRegion string
	f := newFixture(t, WithCloudTrail(func(_ context.Context, region string) (CloudTrailPuller, error) {
		gotRegion = region
		return &fakePuller{region: "eu-west-1", batch: batch}, nil
	}))

	_, err = f.svc.SyncCloudTrail(ctx, &models.CloudTrailSyncRequest{Minutes: 5000})
	require.ErrorIs(t, err, ErrValidation)

	resp, err := f.svc.SyncCloudTrail(ctx, &models.CloudTrailSyncRequest{Region: " eu-west-1 "})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", gotRegion)
	assert.Equal(t, 1, resp.EventsIngested)
	assert.Equal(t, "eu-west-1", resp.Region)
	assert.Equal(t, 15*time.Minute, resp.End.Sub(resp.Start))

	events, err := f.svc.ListEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "bob", events[0].User)
	assert.Equal(t, cloudtrail.Source, events[0].Source)

	failing := newFixture(t, WithCloudTrail(func(context.Context, string) (CloudTrailPuller, error) {
		return &fakePuller{err: errors.New("AccessDenied")}, nil
	}))
	_, err = failing.svc.SyncCloudTrail(ctx, &models.CloudTrailSyncRequest{})
	assert.Error(t, err)
}
