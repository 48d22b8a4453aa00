package service

import (
	"context"
	"strings"
	"time"

	"shop_backend/internal/domain/user/model"
	"shop_backend/internal/domain/user/repository"
	"shop_backend/internal/pkg/apperr"
	"shop_backend/pkg/cache"
	"shop_backend/pkg/response"
	"shop_backend/pkg/utils"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GrantInput 管理员开通会员参数
type GrantInput struct {
	Type string          `json:"subscriptionType" binding:"required"`
	Cost decimal.Decimal `json:"subscriptionCost"`
}

// UserService 用户服务接口
type UserService interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	GrantSubscription(ctx context.Context, userID string, in GrantInput) (*model.Subscription, error)
	RevokeSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	// Invalidate 清除会员缓存，下单消耗折扣后由订单服务调用
	Invalidate(ctx context.Context, userID string)
}

// 缓存键常量
const (
	subscriptionCacheKeyPrefix = "user:subscription:"
	subscriptionCacheTTL       = 10 * time.Minute
)

type userService struct {
	repo   repository.UserRepository
	cache  cache.CacheService
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService 创建用户服务，cache 可为 nil
func NewUserService(repo repository.UserRepository, c cache.CacheService, logger *zap.Logger) UserService {
	return &userService{repo: repo, cache: c, logger: logger, now: time.Now}
}

func (s *userService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if !utils.IsUUID(id) {
		return nil, apperr.Validation("invalid user id %q", id)
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found").WithCode(response.ErrUserNotFound)
		}
		return nil, apperr.Persistence(err, "load user")
	}
	return user, nil
}

// GetSubscription 读取会员信息（带缓存）
func (s *userService) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	key := subscriptionCacheKeyPrefix + userID
	if s.cache != nil {
		var sub model.Subscription
		if err := s.cache.Get(ctx, key, &sub); err == nil {
			return &sub, nil
		}
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, user.Subscription, subscriptionCacheTTL); err != nil {
			s.logger.Warn("cache subscription failed", zap.String("user", userID), zap.Error(err))
		}
	}
	return &user.Subscription, nil
}

// GrantSubscription 开通会员，从当前时间起算；已用折扣次数保留
func (s *userService) GrantSubscription(ctx context.Context, userID string, in GrantInput) (*model.Subscription, error) {
	now := s.now()
	var expiry time.Time
	switch strings.ToLower(in.Type) {
	case model.SubscriptionMonthly:
		expiry = now.AddDate(0, 1, 0)
	case model.SubscriptionYearly:
		expiry = now.AddDate(1, 0, 0)
	default:
		return nil, apperr.Validation("subscriptionType must be %s or %s", model.SubscriptionMonthly, model.SubscriptionYearly)
	}
	if in.Cost.IsNegative() {
		return nil, apperr.Validation("subscriptionCost must not be negative")
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub := user.Subscription
	sub.IsSubscribed = true
	sub.Type = strings.ToLower(in.Type)
	sub.Cost = in.Cost
	sub.Date = &now
	sub.Expiry = &expiry

	if err := s.save(ctx, userID, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription granted",
		zap.String("user", userID),
		zap.String("type", sub.Type),
		zap.Time("expiry", expiry),
	)
	return &sub, nil
}

// RevokeSubscription 取消会员，保留历史计数
func (s *userService) RevokeSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub := user.Subscription
	sub.IsSubscribed = false
	sub.Expiry = nil

	if err := s.save(ctx, userID, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription revoked", zap.String("user", userID))
	return &sub, nil
}

func (s *userService) save(ctx context.Context, userID string, sub model.Subscription) error {
	if err := s.repo.UpdateSubscription(ctx, userID, sub); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("user not found").WithCode(response.ErrUserNotFound)
		}
		return apperr.Persistence(err, "update subscription")
	}
	s.Invalidate(ctx, userID)
	return nil
}

func (s *userService) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, subscriptionCacheKeyPrefix+userID); err != nil {
		s.logger.Warn("invalidate subscription cache failed", zap.String("user", userID), zap.Error(err))
	}
}
