package service

import (
	"context"
	"strings"
	"time"

	"shop_backend/internal/domain/coupon/model"
	"shop_backend/internal/domain/coupon/repository"
	"shop_backend/internal/pkg/apperr"
	"shop_backend/pkg/response"
	"shop_backend/pkg/utils"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CouponInput 创建/更新优惠券参数
type CouponInput struct {
	Code         string          `json:"code" binding:"required"`
	Description  string          `json:"description"`
	DiscountType string          `json:"discountType" binding:"required"`
	Discount     decimal.Decimal `json:"discount"`
	ValidFrom    time.Time       `json:"validFrom" binding:"required"`
	ValidUntil   time.Time       `json:"validUntil" binding:"required"`
	UsageLimit   int             `json:"usageLimit"`
	MinPurchase  decimal.Decimal `json:"minPurchase"`
	Status       string          `json:"status"`
	Visibility   string          `json:"visibility"`
}

type CouponService interface {
	CreateCoupon(ctx context.Context, in CouponInput) (*model.Coupon, error)
	UpdateCoupon(ctx context.Context, id string, in CouponInput) (*model.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error
	ListCoupons(ctx context.Context, status string, p utils.Pagination) (*utils.PageResult, error)
	// ApplyCoupon 下单前预览，只读
	ApplyCoupon(ctx context.Context, code string, cartTotal decimal.Decimal) (*Evaluation, error)
}

type couponService struct {
	repo      repository.CouponRepository
	evaluator *Evaluator
	logger    *zap.Logger
	now       func() time.Time
}

func NewCouponService(repo repository.CouponRepository, logger *zap.Logger) CouponService {
	return &couponService{
		repo:      repo,
		evaluator: NewEvaluator(repo),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *couponService) CreateCoupon(ctx context.Context, in CouponInput) (*model.Coupon, error) {
	coupon := &model.Coupon{}
	if err := apply(coupon, in); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("coupon code %s already exists", coupon.Code)
		}
		return nil, apperr.Persistence(err, "create coupon")
	}
	s.logger.Info("coupon created", zap.String("code", coupon.Code), zap.String("type", coupon.DiscountType))
	return coupon, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, id string, in CouponInput) (*model.Coupon, error) {
	coupon, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldCode := coupon.Code
	if err := apply(coupon, in); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, coupon); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("coupon code %s already exists", coupon.Code)
		}
		return nil, apperr.Persistence(err, "update coupon")
	}
	if cached, ok := s.repo.(*repository.CachedCouponRepository); ok && oldCode != coupon.Code {
		cached.Invalidate(ctx, oldCode)
	}
	return coupon, nil
}

func (s *couponService) DeleteCoupon(ctx context.Context, id string) error {
	coupon, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, coupon); err != nil {
		return apperr.Persistence(err, "delete coupon")
	}
	return nil
}

func (s *couponService) ListCoupons(ctx context.Context, status string, p utils.Pagination) (*utils.PageResult, error) {
	offset, limit := p.GetPageOffset()
	coupons, total, err := s.repo.List(ctx, status, offset, limit)
	if err != nil {
		return nil, apperr.Persistence(err, "list coupons")
	}
	return utils.NewPageResult(coupons, total, p), nil
}

func (s *couponService) ApplyCoupon(ctx context.Context, code string, cartTotal decimal.Decimal) (*Evaluation, error) {
	if cartTotal.IsNegative() {
		return nil, apperr.Validation("cartTotal must not be negative")
	}
	return s.evaluator.Evaluate(ctx, code, cartTotal, s.now())
}

func (s *couponService) get(ctx context.Context, id string) (*model.Coupon, error) {
	if !utils.IsUUID(id) {
		return nil, apperr.Validation("invalid coupon id %q", id)
	}
	coupon, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("coupon not found").WithCode(response.ErrCouponNotFound)
		}
		return nil, apperr.Persistence(err, "load coupon")
	}
	return coupon, nil
}

// apply 校验并写入字段
func apply(c *model.Coupon, in CouponInput) error {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		return apperr.Validation("code is required")
	}

	discountType := strings.ToLower(in.DiscountType)
	switch discountType {
	case model.DiscountPercentage:
		if in.Discount.GreaterThan(hundred) {
			return apperr.Validation("percentage discount must not exceed 100")
		}
	case model.DiscountFlat:
	default:
		return apperr.Validation("discountType must be %s or %s", model.DiscountPercentage, model.DiscountFlat)
	}
	if !in.Discount.IsPositive() {
		return apperr.Validation("discount must be positive")
	}
	if !in.ValidUntil.After(in.ValidFrom) {
		return apperr.Validation("validUntil must be after validFrom")
	}
	if in.UsageLimit < 0 {
		return apperr.Validation("usageLimit must not be negative")
	}
	if in.MinPurchase.IsNegative() {
		return apperr.Validation("minPurchase must not be negative")
	}

	status := in.Status
	if status == "" {
		status = model.StatusActive
	}
	switch status {
	case model.StatusActive, model.StatusExpired, model.StatusUsed:
	default:
		return apperr.Validation("invalid status %q", status)
	}

	visibility := in.Visibility
	if visibility == "" {
		visibility = model.VisibilityPublic
	}
	if visibility != model.VisibilityPublic && visibility != model.VisibilityPersonal {
		return apperr.Validation("invalid visibility %q", visibility)
	}

	c.Code = code
	c.Description = in.Description
	c.DiscountType = discountType
	c.Discount = in.Discount
	c.ValidFrom = in.ValidFrom
	c.ValidUntil = in.ValidUntil
	c.UsageLimit = in.UsageLimit
	c.MinPurchase = in.MinPurchase
	c.Status = status
	c.Visibility = visibility
	return nil
}
