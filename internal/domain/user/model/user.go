package model

import (
	"time"

	"github.com/shopspring/decimal"

	"shop_backend/pkg/model"
)

const (
	RoleUser  = 1
	RoleAdmin = 2
)

const (
	SubscriptionMonthly = "monthly"
	SubscriptionYearly  = "yearly"
)

// User 用户模型，订单域只读取订阅信息与收货地址
type User struct {
	model.BaseModel
	Mobile       string       `gorm:"uniqueIndex;size:20" json:"mobile"`
	Nickname     string       `gorm:"size:64" json:"nickname"`
	Email        string       `gorm:"size:128" json:"email"`
	Role         int          `gorm:"default:1" json:"role"`
	Subscription Subscription `gorm:"embedded;embeddedPrefix:subscription_" json:"subscription"`
}

// Subscription 付费会员信息
type Subscription struct {
	IsSubscribed     bool            `json:"isSubscribed"`
	Cost             decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"subscriptionCost"`
	Date             *time.Time      `json:"subscriptionDate"`
	Expiry           *time.Time      `json:"subscriptionExpiry"`
	Type             string          `gorm:"size:16" json:"subscriptionType"`
	DiscountsUsed    int             `gorm:"default:0" json:"discountsUsed"`
	LastDiscountUsed *time.Time      `json:"lastDiscountUsed"`
}

// Active 会员有效：已订阅且未过期
func (s Subscription) Active(now time.Time) bool {
	return s.IsSubscribed && s.Expiry != nil && s.Expiry.After(now)
}

// Address 收货地址，订单只引用不修改
type Address struct {
	model.BaseModel
	UserID  string `gorm:"index;type:uuid" json:"userId"`
	Name    string `gorm:"size:64" json:"name"`
	Phone   string `gorm:"size:20" json:"phone"`
	Line1   string `gorm:"size:255" json:"line1"`
	Line2   string `gorm:"size:255" json:"line2"`
	City    string `gorm:"size:64" json:"city"`
	State   string `gorm:"size:64" json:"state"`
	Pincode string `gorm:"size:16" json:"pincode"`
	Country string `gorm:"size:64" json:"country"`
}
