package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFromRedis(rdb), mr
}

func TestCheckoutResult(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, found, err := c.GetCheckoutResult(ctx, "acc-1", "key-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SaveCheckoutResult(ctx, "acc-1", "key-1", "order-1", time.Hour))

	orderID, found, err := c.GetCheckoutResult(ctx, "acc-1", "key-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "order-1", orderID)

	// keys are scoped per account
	_, found, err = c.GetCheckoutResult(ctx, "acc-2", "key-1")
	require.NoError(t, err)
	assert.False(t, found)

	mr.FastForward(2 * time.Hour)
	_, found, err = c.GetCheckoutResult(ctx, "acc-1", "key-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLock(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "checkout:acc-1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.AcquireLock(ctx, "checkout:acc-1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// a stale token must not release someone else's lock
	require.NoError(t, c.ReleaseLock(ctx, "checkout:acc-1", "not-the-owner"))
	assert.True(t, mr.Exists("lock:checkout:acc-1"))

	require.NoError(t, c.ReleaseLock(ctx, "checkout:acc-1", token))
	assert.False(t, mr.Exists("lock:checkout:acc-1"))

	_, ok, err = c.AcquireLock(ctx, "checkout:acc-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockExpires(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.AcquireLock(ctx, "checkout:acc-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = c.AcquireLock(ctx, "checkout:acc-1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRevocation(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.RevokedBefore(ctx, "acc-1")
	require.NoError(t, err)
	assert.False(t, ok)

	later := time.UnixMilli(time.Now().UnixMilli())
	earlier := later.Add(-time.Hour)

	require.NoError(t, c.RevokeTokensBefore(ctx, "acc-1", later))
	require.NoError(t, c.RevokeTokensBefore(ctx, "acc-1", earlier))

	at, ok, err := c.RevokedBefore(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, later.Equal(at))
}
