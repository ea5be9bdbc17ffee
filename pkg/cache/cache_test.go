package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	Price float64 `json:"price"`
}

func TestMemoryCache_ExpiryAndLRU(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(
		WithMemoryMaxSize(2),
		WithMemoryCleanup(0),
		WithMemoryClock(func() time.Time { return now }),
	)
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", point{1}, time.Minute))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", point{2}, time.Minute))
	now = now.Add(time.Second)

	got, err := GetTyped[point](ctx, mc, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Price)

	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", point{3}, time.Minute))
	assert.Equal(t, 2, mc.Len())
	_, err = GetTyped[point](ctx, mc, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)

	now = now.Add(2 * time.Minute)
	_, err = GetTyped[point](ctx, mc, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Lock(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "lock:a1", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = mc.TryLock(ctx, "lock:a1", time.Minute)
	assert.True(t, ok, "expired lock is reclaimable")

	require.NoError(t, mc.Unlock(ctx, "lock:a1"))
	ok, _ = mc.TryLock(ctx, "lock:a1", time.Minute)
	assert.True(t, ok)
}

func TestRedisCache_LockUsesSetNX(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(client, "mp")
	ctx := context.Background()

	mock.ExpectSetNX("mp:lock:alert:a1", "locked", time.Minute).SetVal(true)
	mock.ExpectSetNX("mp:lock:alert:a1", "locked", time.Minute).SetVal(false)
	mock.ExpectDel("mp:lock:alert:a1").SetVal(1)

	ok, err := rc.TryLock(ctx, "lock:alert:a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.TryLock(ctx, "lock:alert:a1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Unlock(ctx, "lock:alert:a1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_Get(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(client, "mp")
	ctx := context.Background()

	mock.ExpectGet("mp:quote").SetVal(`{"price":1.5}`)
	mock.ExpectGet("mp:missing").RedisNil()
	mock.ExpectExists("mp:quote", "mp:other").SetVal(1)

	got, err := GetTyped[point](ctx, rc, "quote")
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.Price)

	_, err = GetTyped[point](ctx, rc, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	ok, err := rc.Exists(ctx, "quote", "other")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisOptions(t *testing.T) {
	t.Parallel()

	cfg := &RedisConfig{PoolSize: 10}
	for _, opt := range []RedisOption{
		WithRedisAddr("redis:6380"),
		WithRedisPool(32, 4, 2*time.Second),
		WithRedisPrefix("mp"),
	} {
		opt(cfg)
	}
	assert.Equal(t, "redis:6380", cfg.Addr)
	assert.Equal(t, 32, cfg.PoolSize)
	assert.Equal(t, 4, cfg.MinIdleConns)
	assert.Equal(t, 2*time.Second, cfg.PoolTimeout)
	assert.Equal(t, "mp", cfg.Prefix)
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "price:BTC", GenerateKey("price", "BTC"))
}
