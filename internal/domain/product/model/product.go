package model

import (
	"time"

	"github.com/shopspring/decimal"

	baseModel "shop_backend/pkg/model"
)

// Product 商品，订单域只读取价格信息并调整库存/销量
type Product struct {
	baseModel.BaseModel
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	SKU           string          `gorm:"type:varchar(64);index" json:"sku"`
	HSN           string          `gorm:"type:varchar(16)" json:"hsn"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Image         string          `gorm:"type:varchar(512)" json:"image"`
	StockQuantity int             `gorm:"not null;default:0" json:"stockQuantity"`
	SoldCount     int             `gorm:"not null;default:0" json:"soldCount"`
}

const (
	AdjustmentDelivered = "delivered"
	AdjustmentReturned  = "return_approved"
)

// InventoryAdjustment 库存调整流水，(order_id, product_id, kind) 唯一，保证同一订单同类调整只执行一次
type InventoryAdjustment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_adjustment" json:"orderId"`
	ProductID  string    `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_adjustment" json:"productId"`
	Kind       string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_inventory_adjustment" json:"kind"`
	StockDelta int       `gorm:"not null" json:"stockDelta"`
	SoldDelta  int       `gorm:"not null" json:"soldDelta"`
	CreatedAt  time.Time `json:"createdAt"`
}
