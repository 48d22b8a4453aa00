package service

import (
	"time"

	"github.com/shopspring/decimal"

	"shop_backend/internal/domain/user/model"
)

// DiscountResult 会员折扣计算结果
type DiscountResult struct {
	Applied         bool
	Amount          decimal.Decimal
	NewTotal        decimal.Decimal
	CostAtTimeOfUse decimal.Decimal
}

// SubscriptionPolicy 会员固定金额折扣，在优惠券之后应用
type SubscriptionPolicy struct {
	Amount decimal.Decimal
}

func NewSubscriptionPolicy(amount decimal.Decimal) SubscriptionPolicy {
	return SubscriptionPolicy{Amount: amount}
}

// Apply 纯计算，不修改用户；使用计数由下单事务负责
func (p SubscriptionPolicy) Apply(user *model.User, runningTotal decimal.Decimal, now time.Time) DiscountResult {
	if user == nil || !user.Subscription.Active(now) {
		return DiscountResult{NewTotal: runningTotal}
	}

	newTotal := runningTotal.Sub(p.Amount)
	if newTotal.IsNegative() {
		newTotal = decimal.Zero
	}
	return DiscountResult{
		Applied:         true,
		Amount:          p.Amount,
		NewTotal:        newTotal,
		CostAtTimeOfUse: user.Subscription.Cost,
	}
}
