package model

import (
	"time"

	"github.com/shopspring/decimal"

	baseModel "shop_backend/pkg/model"
)

// 退货状态
const (
	ReturnPending   = "pending"
	ReturnApproved  = "approved"
	ReturnRejected  = "rejected"
	ReturnCompleted = "return_completed"
)

// Order 订单，价格/优惠/会员折扣均为下单时快照
type Order struct {
	baseModel.BaseModel
	OrderCode         string               `gorm:"type:varchar(16);uniqueIndex;not null" json:"orderId"`
	InvoiceCode       string               `gorm:"type:varchar(24);uniqueIndex;not null" json:"invoiceId"`
	UserID            string               `gorm:"type:uuid;index;not null" json:"userId"`
	ShippingAddressID string               `gorm:"type:uuid;not null" json:"shippingAddress"`
	Items             []OrderItem          `gorm:"foreignKey:OrderID" json:"orderItems"`
	Payment           PaymentInfo          `gorm:"embedded;embeddedPrefix:payment_" json:"paymentInfo"`
	TotalPrice        decimal.Decimal      `gorm:"type:numeric(12,2);not null" json:"totalPrice"`
	TaxTotal          decimal.Decimal      `gorm:"type:numeric(12,2);not null" json:"taxTotal"`
	Coupon            CouponSnapshot       `gorm:"embedded;embeddedPrefix:coupon_" json:"coupon"`
	Subscription      SubscriptionDiscount `gorm:"embedded;embeddedPrefix:subscription_" json:"subscriptionDiscount"`
	Status            Status               `gorm:"type:varchar(32);index;not null;default:pending" json:"status"`
	ShipmentID        *string              `gorm:"type:varchar(64)" json:"shiprocketShipmentId"`
	ProviderOrderID   *string              `gorm:"type:varchar(64)" json:"shiprocketOrderId,omitempty"`
	AWBNumber         string               `gorm:"type:varchar(32)" json:"awbNumber"`
	Return            ReturnRequest        `gorm:"embedded;embeddedPrefix:return_" json:"returnRequest"`
	Version           int                  `gorm:"not null;default:1" json:"version"`
	History           []StatusHistory      `gorm:"foreignKey:OrderID" json:"statusHistory,omitempty"`
}

type PaymentInfo struct {
	Method        string          `gorm:"type:varchar(32)" json:"method"`
	TransactionID string          `gorm:"type:varchar(128)" json:"transactionId"`
	Status        string          `gorm:"type:varchar(32)" json:"status"`
	OriginalPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"originalPrice"`
}

// CouponSnapshot 下单时优惠券快照，Code 为空表示未使用优惠券
type CouponSnapshot struct {
	Code           string          `gorm:"type:varchar(32)" json:"code,omitempty"`
	DiscountType   string          `gorm:"type:varchar(16)" json:"discountType,omitempty"`
	DiscountValue  decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"discountValue"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"discountAmount"`
}

type SubscriptionDiscount struct {
	Applied         bool            `json:"applied"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"amount"`
	CostAtTimeOfUse decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"subscriptionCostAtTimeOfUse"`
}

type ReturnRequest struct {
	Reason      string     `gorm:"type:varchar(500)" json:"reason,omitempty"`
	Status      string     `gorm:"type:varchar(32)" json:"status,omitempty"`
	RequestedAt *time.Time `json:"requestedAt,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// OrderItem 订单行，名称/单价/税额在下单时固定
type OrderItem struct {
	baseModel.BaseModel
	OrderID   string          `gorm:"type:uuid;index;not null" json:"-"`
	Position  int             `gorm:"not null" json:"-"`
	ProductID string          `gorm:"type:uuid;not null" json:"product"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	SKU       string          `gorm:"type:varchar(64)" json:"sku,omitempty"`
	HSN       string          `gorm:"type:varchar(16)" json:"hsn,omitempty"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	GST       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"gst"`
	Size      string          `gorm:"type:varchar(16)" json:"size,omitempty"`
	Color     string          `gorm:"type:varchar(32)" json:"color,omitempty"`
	Image     string          `gorm:"type:varchar(512)" json:"image,omitempty"`

	ReturnRequested bool   `json:"returnRequested"`
	ReturnQuantity  int    `gorm:"default:0" json:"returnQuantity,omitempty"`
	ReturnReason    string `gorm:"type:varchar(500)" json:"returnReason,omitempty"`
	ReturnStatus    string `gorm:"type:varchar(32)" json:"returnStatus,omitempty"`
}

// LineTax 该行税额合计
func (i OrderItem) LineTax() decimal.Decimal {
	return i.GST.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineTotal 该行金额合计
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StatusHistory 状态流转记录
type StatusHistory struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	OrderID   string    `gorm:"type:uuid;index;not null" json:"-"`
	From      Status    `gorm:"column:from_status;type:varchar(32)" json:"from"`
	To        Status    `gorm:"column:to_status;type:varchar(32);not null" json:"to"`
	Actor     string    `gorm:"type:varchar(64)" json:"actor"`
	Note      string    `gorm:"type:varchar(255)" json:"note,omitempty"`
	CreatedAt time.Time `json:"at"`
}

// TaxFromItems 根据已保存的单件税额重新汇总订单税额
func TaxFromItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTax())
	}
	return total.Round(2)
}
