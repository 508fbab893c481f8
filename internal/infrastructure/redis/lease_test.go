package redisinfra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLeaser(t *testing.T) (*Leaser, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLeaser(client), mr
}

func TestAcquire_Exclusive(t *testing.T) {
	l, _ := newLeaser(t)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "v1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "v1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, err = l.Acquire(ctx, "v2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "other records are independent")

	require.NoError(t, release(ctx))
	_, ok, err = l.Acquire(ctx, "v1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquire_ExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	l, mr := newLeaser(t)
	ctx := context.Background()

	stale, ok, err := l.Acquire(ctx, "v1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = l.Acquire(ctx, "v1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists(keyPrefix+"v1"), "new holder's lease must survive")
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "::not a url")
	assert.Error(t, err)
}
