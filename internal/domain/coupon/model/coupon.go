package model

import (
	"time"

	"github.com/shopspring/decimal"

	baseModel "shop_backend/pkg/model"
)

const (
	DiscountPercentage = "percentage"
	DiscountFlat       = "flat"
)

const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusUsed    = "used"
)

const (
	VisibilityPublic   = "public"
	VisibilityPersonal = "personal"
)

// Coupon 优惠券定义
type Coupon struct {
	baseModel.BaseModel
	Code         string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Description  string          `gorm:"type:varchar(255)" json:"description"`
	DiscountType string          `gorm:"type:varchar(16);not null" json:"discountType"`
	Discount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount"`
	ValidFrom    time.Time       `gorm:"not null" json:"validFrom"`
	ValidUntil   time.Time       `gorm:"not null" json:"validUntil"`
	UsageLimit   int             `gorm:"not null;default:0" json:"usageLimit"` // 0 表示不限次数
	UsedCount    int             `gorm:"not null;default:0" json:"usedCount"`
	MinPurchase  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"minPurchase"`
	Status       string          `gorm:"type:varchar(16);not null;default:active" json:"status"`
	Visibility   string          `gorm:"type:varchar(16);not null;default:public" json:"visibility"`
}
