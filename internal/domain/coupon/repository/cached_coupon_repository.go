package repository

import (
	"context"
	"strings"
	"time"

	"shop_backend/internal/domain/coupon/model"
	"shop_backend/pkg/cache"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	couponCodeCacheKeyPrefix = "coupon:code:"
	couponCacheTTL           = time.Minute
)

// CachedCouponRepository 按优惠码查询走缓存（用于下单前预览），写操作清除缓存
// 下单事务内应使用 WithTx 返回的非缓存仓库
type CachedCouponRepository struct {
	CouponRepository
	cache  cache.CacheService
	logger *zap.Logger
}

func NewCachedCouponRepository(repo CouponRepository, c cache.CacheService, logger *zap.Logger) *CachedCouponRepository {
	return &CachedCouponRepository{CouponRepository: repo, cache: c, logger: logger}
}

func cacheKey(code string) string {
	return couponCodeCacheKeyPrefix + strings.ToUpper(code)
}

func (r *CachedCouponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.cache.Get(ctx, cacheKey(code), &coupon); err == nil {
		return &coupon, nil
	}

	c, err := r.CouponRepository.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, cacheKey(code), c, couponCacheTTL); err != nil {
		r.logger.Warn("cache coupon failed", zap.String("code", c.Code), zap.Error(err))
	}
	return c, nil
}

func (r *CachedCouponRepository) Update(ctx context.Context, coupon *model.Coupon) error {
	if err := r.CouponRepository.Update(ctx, coupon); err != nil {
		return err
	}
	r.invalidate(ctx, coupon.Code)
	return nil
}

func (r *CachedCouponRepository) Delete(ctx context.Context, coupon *model.Coupon) error {
	if err := r.CouponRepository.Delete(ctx, coupon); err != nil {
		return err
	}
	r.invalidate(ctx, coupon.Code)
	return nil
}

func (r *CachedCouponRepository) WithTx(tx *gorm.DB) CouponRepository {
	return r.CouponRepository.WithTx(tx)
}

// Invalidate 清除指定优惠码缓存
func (r *CachedCouponRepository) Invalidate(ctx context.Context, code string) {
	r.invalidate(ctx, code)
}

func (r *CachedCouponRepository) invalidate(ctx context.Context, code string) {
	if err := r.cache.Delete(ctx, cacheKey(code)); err != nil {
		r.logger.Warn("invalidate coupon cache failed", zap.String("code", code), zap.Error(err))
	}
}
