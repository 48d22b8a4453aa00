package repository

import (
	"context"
	"strings"

	"shop_backend/internal/domain/coupon/model"

	"gorm.io/gorm"
)

type CouponRepository interface {
	Create(ctx context.Context, coupon *model.Coupon) error
	GetByID(ctx context.Context, id string) (*model.Coupon, error)
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	List(ctx context.Context, status string, offset, limit int) ([]model.Coupon, int64, error)
	Update(ctx context.Context, coupon *model.Coupon) error
	Delete(ctx context.Context, coupon *model.Coupon) error
	// IncrementUsage 条件自增使用次数，达到上限时不更新并返回 false
	IncrementUsage(ctx context.Context, id string) (bool, error)
	WithTx(tx *gorm.DB) CouponRepository
}

type couponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{db: db}
}

func (r *couponRepository) WithTx(tx *gorm.DB) CouponRepository {
	return &couponRepository{db: tx}
}

func (r *couponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *couponRepository) GetByID(ctx context.Context, id string) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

// GetByCode 优惠码不区分大小写，统一按大写存储
func (r *couponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", strings.ToUpper(code)).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *couponRepository) List(ctx context.Context, status string, offset, limit int) ([]model.Coupon, int64, error) {
	var coupons []model.Coupon
	var total int64

	q := r.db.WithContext(ctx).Model(&model.Coupon{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&coupons).Error; err != nil {
		return nil, 0, err
	}
	return coupons, total, nil
}

func (r *couponRepository) Update(ctx context.Context, coupon *model.Coupon) error {
	return r.db.WithContext(ctx).Save(coupon).Error
}

func (r *couponRepository) Delete(ctx context.Context, coupon *model.Coupon) error {
	return r.db.WithContext(ctx).Delete(coupon).Error
}

// IncrementUsage 乐观条件更新，避免并发下超出使用上限
func (r *couponRepository) IncrementUsage(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Coupon{}).
		Where("id = ? AND (usage_limit = 0 OR used_count < usage_limit)", id).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
