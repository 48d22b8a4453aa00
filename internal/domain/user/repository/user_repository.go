package repository

import (
	"context"
	"time"

	"shop_backend/internal/domain/user/model"

	"gorm.io/gorm"
)

// UserRepository 接口定义
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetAddress(ctx context.Context, userID, addressID string) (*model.Address, error)
	CreateAddress(ctx context.Context, addr *model.Address) error
	UpdateSubscription(ctx context.Context, userID string, sub model.Subscription) error
	// RecordDiscountUsage 会员折扣计数 +1，仅在仍为订阅状态时生效，返回是否更新
	RecordDiscountUsage(ctx context.Context, userID string, now time.Time) (bool, error)
	// WithTx 返回绑定到事务的仓库
	WithTx(tx *gorm.DB) UserRepository
}

// userRepository 实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建新的仓库实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) WithTx(tx *gorm.DB) UserRepository {
	return &userRepository{db: tx}
}

// Create 创建用户
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID 根据ID获取用户
func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetAddress 获取属于该用户的地址
func (r *userRepository) GetAddress(ctx context.Context, userID, addressID string) (*model.Address, error) {
	var addr model.Address
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", addressID, userID).
		First(&addr).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

func (r *userRepository) CreateAddress(ctx context.Context, addr *model.Address) error {
	return r.db.WithContext(ctx).Create(addr).Error
}

func (r *userRepository) UpdateSubscription(ctx context.Context, userID string, sub model.Subscription) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"subscription_is_subscribed":      sub.IsSubscribed,
		"subscription_cost":               sub.Cost,
		"subscription_date":               sub.Date,
		"subscription_expiry":             sub.Expiry,
		"subscription_type":               sub.Type,
		"subscription_discounts_used":     sub.DiscountsUsed,
		"subscription_last_discount_used": sub.LastDiscountUsed,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepository) RecordDiscountUsage(ctx context.Context, userID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND subscription_is_subscribed = ? AND subscription_expiry > ?", userID, true, now).
		Updates(map[string]interface{}{
			"subscription_discounts_used":     gorm.Expr("subscription_discounts_used + 1"),
			"subscription_last_discount_used": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
