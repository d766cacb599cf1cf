package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_Exclusive(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	l := NewRedisLocker(client, time.Minute)

	release, err := l.Acquire(ctx, "detections")
	require.NoError(t, err)
	assert.True(t, mr.Exists("respond:lock:detections"))

	_, err = l.Acquire(ctx, "detections")
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("respond:lock:detections"))

	again, err := l.Acquire(ctx, "detections")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLocker_ExpiredLockNotStolenBack(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	l := NewRedisLocker(client, time.Second)

	stale, err := l.Acquire(ctx, "detections")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "detections")
	require.NoError(t, err)

	// The stale holder must not delete the new holder's key.
	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("respond:lock:detections"))

	require.NoError(t, fresh(ctx))
	assert.False(t, mr.Exists("respond:lock:detections"))
}

func TestRedisLocker_DefaultTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLocker(client, 0)

	release, err := l.Acquire(context.Background(), "x")
	require.NoError(t, err)
	defer release(context.Background())

	assert.Equal(t, DefaultTTL, mr.TTL("respond:lock:x"))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = Connect(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "detections")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "detections")
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := l.Acquire(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "detections")
	assert.NoError(t, err)
}
