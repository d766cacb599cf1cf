package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	*MemoryPublisher
	connected bool
}

func (f *fakeClient) QueueSubscribe(string, string, MessageHandler) (Subscription, error) {
	return nil, nil
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func TestMemoryPublisher(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPublisher()

	require.NoError(t, p.Publish(ctx, SubjectAlertsCreated, []byte(`{"alert_id":"a1"}`)))
	require.NoError(t, PublishJSON(ctx, p, SubjectIncidentsUpdated, map[string]string{"incident_id": "i1"}))

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"alert_id":"a1"}`, string(msgs[0].Data))
	assert.False(t, msgs[0].Timestamp.IsZero())
	assert.Equal(t, `{"incident_id":"i1"}`, string(msgs[1].Data))
	assert.Equal(t, []string{SubjectAlertsCreated, SubjectIncidentsUpdated}, p.Subjects())

	require.NoError(t, p.Close())
	assert.Error(t, p.Publish(ctx, SubjectAlertsCreated, nil))
}

func TestMemoryPublisher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewMemoryPublisher()
	assert.ErrorIs(t, p.Publish(ctx, SubjectAlertsCreated, nil), context.Canceled)
	assert.Empty(t, p.Messages())
}

func TestPublishJSON_MarshalError(t *testing.T) {
	p := NewMemoryPublisher()
	err := PublishJSON(context.Background(), p, SubjectAlertsCreated, func() {})
	assert.ErrorContains(t, err, "marshal message")
}

func TestCheckClientHealth(t *testing.T) {
	tests := []struct {
		name   string
		client Client
		want   HealthStatus
	}{
		{name: "disabled", client: nil, want: HealthStatus{}},
		{name: "connected", client: &fakeClient{MemoryPublisher: NewMemoryPublisher(), connected: true}, want: HealthStatus{Enabled: true, Connected: true}},
		{name: "disconnected", client: &fakeClient{MemoryPublisher: NewMemoryPublisher()}, want: HealthStatus{Enabled: true, Error: "not connected to message broker"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckClientHealth(tt.client))
		})
	}
}
