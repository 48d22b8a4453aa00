package shipping

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop_backend/pkg/cache"
)

func TestTokenStoreWaitsForPeerLogin(t *testing.T) {
	shared := cache.NewMemoryCache()
	ctx := context.Background()

	// 另一实例已持有登录锁
	ok, err := shared.SetNX(ctx, tokenLockKey, 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	store := NewTokenStore(shared, time.Hour)
	store.pollInterval = 5 * time.Millisecond

	go func() {
		time.Sleep(15 * time.Millisecond)
		_ = shared.Set(ctx, tokenCacheKey, "peer-token", time.Hour)
	}()

	var logins int32
	token, err := store.Get(ctx, func(context.Context) (string, error) {
		atomic.AddInt32(&logins, 1)
		return "own-token", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "peer-token", token)
	assert.Zero(t, atomic.LoadInt32(&logins))
}

func TestTokenStoreLogsInWhenPeerStalls(t *testing.T) {
	shared := cache.NewMemoryCache()
	ctx := context.Background()
	_, _ = shared.SetNX(ctx, tokenLockKey, 1, time.Minute)

	store := NewTokenStore(shared, time.Hour)
	store.pollInterval = time.Millisecond
	store.pollAttempts = 3

	token, err := store.Get(ctx, func(context.Context) (string, error) { return "own-token", nil })
	require.NoError(t, err)
	assert.Equal(t, "own-token", token)
}

func TestTokenStoreReleasesLock(t *testing.T) {
	shared := cache.NewMemoryCache()
	ctx := context.Background()
	store := NewTokenStore(shared, time.Hour)

	_, err := store.Get(ctx, func(context.Context) (string, error) { return "t1", nil })
	require.NoError(t, err)

	held, err := shared.Exists(ctx, tokenLockKey)
	require.NoError(t, err)
	assert.False(t, held)
}
