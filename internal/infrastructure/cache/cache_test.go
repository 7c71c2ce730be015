package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/homereach/lead-exchange-backend/internal/infrastructure/config"
)

func setupTestRedis(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := &config.RedisConfig{
		URL:          mr.Addr(),
		DB:           0,
		PoolSize:     5,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	c, err := NewRedisCache(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})

	return c, mr
}

func TestNewRedisCache(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		_, err := NewRedisCache(&config.RedisConfig{URL: "localhost:6379"}, nil)
		assert.Error(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewRedisCache(nil, zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("connection failure", func(t *testing.T) {
		cfg := &config.RedisConfig{
			URL:         "localhost:1",
			DialTimeout: 100 * time.Millisecond,
		}
		_, err := NewRedisCache(cfg, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis connection failed")
	})
}

func TestRedisCache_BasicOperations(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "lex:test:key", "value", time.Hour))

		got, err := c.Get(ctx, "lex:test:key")
		require.NoError(t, err)
		assert.Equal(t, "value", got)
	})

	t.Run("missing key yields typed error", func(t *testing.T) {
		_, err := c.Get(ctx, "lex:test:absent")
		require.Error(t, err)

		var notFound ErrCacheKeyNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "lex:test:absent", notFound.Key)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "lex:test:gone", "value", time.Hour))
		require.NoError(t, c.Delete(ctx, "lex:test:gone"))

		exists, err := c.Exists(ctx, "lex:test:gone")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("setnx holds the first value", func(t *testing.T) {
		ok, err := c.SetNX(ctx, "lex:test:lock", "first", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.SetNX(ctx, "lex:test:lock", "second", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := c.Get(ctx, "lex:test:lock")
		require.NoError(t, err)
		assert.Equal(t, "first", got)
	})

	t.Run("increment", func(t *testing.T) {
		n, err := c.Increment(ctx, "lex:test:count")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = c.Increment(ctx, "lex:test:count")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "lex:test:ttl", "expiring", time.Second))

	got, err := c.Get(ctx, "lex:test:ttl")
	require.NoError(t, err)
	assert.Equal(t, "expiring", got)

	mr.FastForward(1100 * time.Millisecond)

	_, err = c.Get(ctx, "lex:test:ttl")
	var notFound ErrCacheKeyNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestRedisCache_JSON(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Rate  float64  `json:"rate"`
		Zips  []string `json:"zips"`
		Count int      `json:"count"`
	}

	original := payload{Rate: 0.85, Zips: []string{"94110", "94103"}, Count: 40}
	require.NoError(t, c.SetJSON(ctx, "lex:test:json", original, time.Hour))

	var got payload
	require.NoError(t, c.GetJSON(ctx, "lex:test:json", &got))
	assert.Equal(t, original, got)

	require.NoError(t, c.Set(ctx, "lex:test:badjson", "not json", time.Hour))
	err := c.GetJSON(ctx, "lex:test:badjson", &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json unmarshal failed")
}
