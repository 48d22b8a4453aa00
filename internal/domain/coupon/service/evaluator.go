package service

import (
	"context"
	"strings"
	"time"

	"shop_backend/internal/domain/coupon/model"
	"shop_backend/internal/domain/coupon/repository"
	"shop_backend/internal/pkg/apperr"
	"shop_backend/pkg/response"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// Evaluation 优惠券校验结果，同时作为订单上的快照来源
type Evaluation struct {
	CouponID       string          `json:"-"`
	Code           string          `json:"code"`
	DiscountType   string          `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Valid          bool            `json:"valid"`
}

// Evaluator 只读校验优惠码，不修改使用次数
type Evaluator struct {
	repo repository.CouponRepository
}

func NewEvaluator(repo repository.CouponRepository) *Evaluator {
	return &Evaluator{repo: repo}
}

// Evaluate 按优惠码查找并校验
func (e *Evaluator) Evaluate(ctx context.Context, code string, cartTotal decimal.Decimal, now time.Time) (*Evaluation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("coupon code is required").WithCode(response.ErrCouponInvalid)
	}

	coupon, err := e.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("coupon %s not found", strings.ToUpper(code)).WithCode(response.ErrCouponNotFound)
		}
		return nil, apperr.Persistence(err, "load coupon")
	}
	return Check(coupon, cartTotal, now)
}

// Check 校验顺序：状态、有效期、使用次数、最低消费
func Check(c *model.Coupon, cartTotal decimal.Decimal, now time.Time) (*Evaluation, error) {
	invalid := func(format string, args ...interface{}) error {
		return apperr.BusinessRule(format, args...).WithCode(response.ErrCouponInvalid)
	}

	if c.Status != model.StatusActive {
		return nil, invalid("coupon %s is not active", c.Code)
	}
	if now.Before(c.ValidFrom) {
		return nil, invalid("coupon %s is not valid yet", c.Code)
	}
	if now.After(c.ValidUntil) {
		return nil, invalid("coupon %s has expired", c.Code)
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return nil, invalid("coupon %s usage limit reached", c.Code)
	}
	if cartTotal.LessThan(c.MinPurchase) {
		return nil, invalid("minimum purchase of %s required for coupon %s", c.MinPurchase.StringFixed(2), c.Code)
	}

	return &Evaluation{
		CouponID:       c.ID,
		Code:           c.Code,
		DiscountType:   c.DiscountType,
		DiscountValue:  c.Discount,
		DiscountAmount: DiscountAmount(c.DiscountType, c.Discount, cartTotal),
		Valid:          true,
	}, nil
}

// DiscountAmount 百分比按总额计算并保留两位小数，固定金额直接使用面值
func DiscountAmount(discountType string, value, cartTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch discountType {
	case model.DiscountPercentage:
		amount = cartTotal.Mul(value).Div(hundred).Round(2)
	default:
		amount = value
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
