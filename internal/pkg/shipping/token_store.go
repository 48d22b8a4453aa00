package shipping

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"shop_backend/pkg/cache"
)

const (
	tokenCacheKey = "shipping:token"
	tokenLockKey  = "shipping:token:lock"
	tokenLockTTL  = 30 * time.Second
)

// TokenStore 物流平台 bearer token 缓存，存于共享缓存中，多实例共用一份
type TokenStore struct {
	cache cache.CacheService
	ttl   time.Duration
	mu    sync.Mutex

	// 其他实例持有登录锁时，轮询缓存的间隔与次数
	pollInterval time.Duration
	pollAttempts int
}

func NewTokenStore(c cache.CacheService, ttl time.Duration) *TokenStore {
	return &TokenStore{cache: c, ttl: ttl, pollInterval: 200 * time.Millisecond, pollAttempts: 10}
}

// Get 返回缓存中的 token，缺失时调用 login 获取并写回
// 进程内用互斥锁、跨实例用 SetNX 锁，保证同一时刻只有一次登录
// 等待其他实例超时后仍自行登录，不会因锁丢失而阻塞
func (s *TokenStore) Get(ctx context.Context, login func(ctx context.Context) (string, error)) (string, error) {
	if token, ok := s.cached(ctx); ok {
		return token, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.cached(ctx); ok {
		return token, nil
	}

	locked, err := s.cache.SetNX(ctx, tokenLockKey, 1, tokenLockTTL)
	if err == nil && !locked {
		if token, ok := s.waitForPeer(ctx); ok {
			return token, nil
		}
	}
	if locked {
		defer func() { _ = s.cache.Delete(context.WithoutCancel(ctx), tokenLockKey) }()
	}

	token, err := login(ctx)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, tokenCacheKey, token, s.ttl); err != nil {
		return "", errors.Wrap(err, "store shipping token")
	}
	return token, nil
}

// Invalidate 令 token 失效，下次调用重新登录
func (s *TokenStore) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, tokenCacheKey)
}

func (s *TokenStore) waitForPeer(ctx context.Context) (string, bool) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for i := 0; i < s.pollAttempts; i++ {
		select {
		case <-ctx.Done():
			return "", false
		case <-ticker.C:
		}
		if token, ok := s.cached(ctx); ok {
			return token, true
		}
	}
	return "", false
}

func (s *TokenStore) cached(ctx context.Context) (string, bool) {
	var token string
	if err := s.cache.Get(ctx, tokenCacheKey, &token); err != nil || token == "" {
		return "", false
	}
	return token, true
}
