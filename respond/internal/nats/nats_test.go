package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/common/messaging"
	"github.com/secureops/workbench/respond/internal/models"
)

var now = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func TestPublisher_AlertsCreated(t *testing.T) {
	mem := messaging.NewMemoryPublisher()
	p := NewPublisher(mem)

	require.NoError(t, p.PublishAlertsCreated(context.Background(), nil))
	assert.Empty(t, mem.Messages())

	alerts := []*models.Alert{
		{ID: "a1", RuleID: "r1", RuleName: "Root", Severity: "high", EventID: "e1", Source: "auth", CreatedAt: now},
		{ID: "a2", RuleID: "r1", RuleName: "Root", Severity: "high", EventID: "e2", Source: "auth", CreatedAt: now},
	}
	require.NoError(t, p.PublishAlertsCreated(context.Background(), alerts))

	msgs := mem.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, messaging.SubjectAlertsCreated, msgs[0].Subject)

	var got AlertsCreatedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "a2", got.Alerts[1].AlertID)
}

func TestPublisher_Subjects(t *testing.T) {
	mem := messaging.NewMemoryPublisher()
	p := NewPublisher(mem)
	ctx := context.Background()
	inc := &models.Incident{ID: "i1", Title: "t", Status: models.IncidentStatusOpen, CreatedAt: now, UpdatedAt: now}

	require.NoError(t, p.PublishIncidentCreated(ctx, inc, 2))
	require.NoError(t, p.PublishIncidentUpdated(ctx, inc, ChangeClosed))
	require.NoError(t, p.PublishIncidentDeleted(ctx, "i1", now))
	require.NoError(t, p.PublishEvidenceRecorded(ctx, &models.EvidenceFile{ID: "ev1", IncidentID: "i1"}))
	require.NoError(t, p.RequestDetections(ctx, &DetectionRequest{Limit: 10}))

	assert.Equal(t, []string{
		messaging.SubjectIncidentsCreated,
		messaging.SubjectIncidentsUpdated,
		messaging.SubjectIncidentsDeleted,
		messaging.SubjectEvidenceRecorded,
		messaging.SubjectDetectionsRequest,
	}, mem.Subjects())

	var ev IncidentEvent
	require.NoError(t, json.Unmarshal(mem.Messages()[1].Data, &ev))
	assert.Equal(t, ChangeClosed, ev.Change)
}

func TestPublisher_NilBroker(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.PublishIncidentDeleted(context.Background(), "i1", now))
	assert.NoError(t, NewPublisher(nil).RequestDetections(context.Background(), &DetectionRequest{}))
}

type fakeSubscription struct {
	subject      string
	unsubscribed bool
}

func (s *fakeSubscription) Unsubscribe() error { s.unsubscribed = true; return nil }
func (s *fakeSubscription) Subject() string    { return s.subject }

type fakeSubscriber struct {
	handlers map[string]messaging.MessageHandler
	queue    string
	sub      *fakeSubscription
	err      error
}

func (f *fakeSubscriber) QueueSubscribe(subject, queue string, h messaging.MessageHandler) (messaging.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.handlers == nil {
		f.handlers = map[string]messaging.MessageHandler{}
	}
	f.handlers[subject] = h
	f.queue = queue
	f.sub = &fakeSubscription{subject: subject}
	return f.sub, nil
}

func (f *fakeSubscriber) Close() error { return nil }

type mockDetector struct {
	RunDetectionsFunc func(ctx context.Context, limit int) (*models.DetectionRunResponse, error)
}

func (m *mockDetector) RunDetections(ctx context.Context, limit int) (*models.DetectionRunResponse, error) {
	return m.RunDetectionsFunc(ctx, limit)
}

func TestHandler_DetectionRequest(t *testing.T) {
	var gotLimit int
	det := &mockDetector{RunDetectionsFunc: func(_ context.Context, limit int) (*models.DetectionRunResponse, error) {
		gotLimit = limit
		return &models.DetectionRunResponse{AlertsCreated: 3}, nil
	}}
	sub := &fakeSubscriber{}
	h := NewHandler(sub, det, logging.Discard())
	require.NoError(t, h.Start(context.Background()))
	assert.Equal(t, messaging.QueueRespondWorkers, sub.queue)

	handle := sub.handlers[messaging.SubjectDetectionsRequest]
	require.NotNil(t, handle)

	require.NoError(t, handle(context.Background(), &messaging.Message{Data: []byte(`{"limit":25}`)}))
	assert.Equal(t, 25, gotLimit)

	require.NoError(t, handle(context.Background(), &messaging.Message{}))
	assert.Equal(t, 0, gotLimit)

	assert.Error(t, handle(context.Background(), &messaging.Message{Data: []byte(`{`)}))

	require.NoError(t, h.Stop())
	assert.True(t, sub.sub.unsubscribed)
}

func TestHandler_DetectorFailure(t *testing.T) {
	boom := errors.New("store down")
	det := &mockDetector{RunDetectionsFunc: func(context.Context, int) (*models.DetectionRunResponse, error) {
		return nil, boom
	}}
	sub := &fakeSubscriber{}
	h := NewHandler(sub, det, logging.Discard())
	require.NoError(t, h.Start(context.Background()))

	err := sub.handlers[messaging.SubjectDetectionsRequest](context.Background(), &messaging.Message{})
	assert.ErrorIs(t, err, boom)
}

func TestHandler_SubscribeFailure(t *testing.T) {
	h := NewHandler(&fakeSubscriber{err: errors.New("no conn")}, &mockDetector{}, logging.Discard())
	assert.Error(t, h.Start(context.Background()))
}
