package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenEntry struct {
	Token string `json:"token"`
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(rdb, "test:")
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		var v tokenEntry
		assert.ErrorIs(t, c.Get(ctx, "absent", &v), ErrCacheMiss)
	})

	t.Run("set get with prefix", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "shipping:token", tokenEntry{Token: "abc"}, time.Minute))
		assert.True(t, mr.Exists("test:shipping:token"))

		var v tokenEntry
		require.NoError(t, c.Get(ctx, "shipping:token", &v))
		assert.Equal(t, "abc", v.Token)
	})

	t.Run("expires", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", tokenEntry{Token: "x"}, time.Second))
		mr.FastForward(2 * time.Second)

		ok, err := c.Exists(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("setnx", func(t *testing.T) {
		ok, err := c.SetNX(ctx, "lock", "a", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.SetNX(ctx, "lock", "b", time.Second)
		require.NoError(t, err)
		assert.False(t, ok)

		mr.FastForward(2 * time.Second)
		ok, err = c.SetNX(ctx, "lock", "c", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "gone", tokenEntry{Token: "y"}, 0))
		require.NoError(t, c.Delete(ctx, "gone"))
		var v tokenEntry
		assert.ErrorIs(t, c.Get(ctx, "gone", &v), ErrCacheMiss)
	})
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", tokenEntry{Token: "v"}, 0))
	var v tokenEntry
	require.NoError(t, c.Get(ctx, "k", &v))
	assert.Equal(t, "v", v.Token)

	require.NoError(t, c.Set(ctx, "expired", tokenEntry{Token: "old"}, time.Nanosecond))
	time.Sleep(time.Millisecond)
	assert.ErrorIs(t, c.Get(ctx, "expired", &v), ErrCacheMiss)

	require.NoError(t, c.Delete(ctx, "k"))
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.SetNX(ctx, "lock", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.SetNX(ctx, "lock", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
