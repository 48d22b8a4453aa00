package repository

import (
	"context"
	"time"

	"shop_backend/internal/domain/order/model"

	"gorm.io/gorm"
)

// ListFilter 订单列表筛选条件
type ListFilter struct {
	UserID string
	Status string
}

type OrderRepository interface {
	// Create 写入订单及其订单行与首条状态记录
	Create(ctx context.Context, order *model.Order) error
	GetByCode(ctx context.Context, code string) (*model.Order, error)
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]model.Order, int64, error)
	// UpdateVersioned 基于版本号的条件更新，版本不匹配时返回 false
	UpdateVersioned(ctx context.Context, id string, version int, changes map[string]interface{}) (bool, error)
	AppendHistory(ctx context.Context, h *model.StatusHistory) error
	// MarkItemsReturn 标记订单行的退货信息，itemIDs 为空时作用于全部订单行
	MarkItemsReturn(ctx context.Context, orderID string, itemIDs []string, changes map[string]interface{}) error
	// SetShipment 物流下单成功后回写运单信息，不改变版本号
	// 订单已取消或已有运单时不写入并返回 false
	SetShipment(ctx context.Context, id, shipmentID, providerOrderID, awb string) (bool, error)
	SetAWB(ctx context.Context, id, awb string) error
	WithTx(tx *gorm.DB) OrderRepository
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) WithTx(tx *gorm.DB) OrderRepository {
	return &orderRepository{db: tx}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("order_code = ?", code).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter ListFilter, offset, limit int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	q := r.db.WithContext(ctx).Model(&model.Order{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepository) UpdateVersioned(ctx context.Context, id string, version int, changes map[string]interface{}) (bool, error) {
	updates := make(map[string]interface{}, len(changes)+2)
	for k, v := range changes {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND version = ?", id, version).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) AppendHistory(ctx context.Context, h *model.StatusHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *orderRepository) MarkItemsReturn(ctx context.Context, orderID string, itemIDs []string, changes map[string]interface{}) error {
	q := r.db.WithContext(ctx).Model(&model.OrderItem{}).Where("order_id = ?", orderID)
	if len(itemIDs) > 0 {
		q = q.Where("id IN ?", itemIDs)
	}
	return q.UpdateColumns(changes).Error
}

func (r *orderRepository) SetShipment(ctx context.Context, id, shipmentID, providerOrderID, awb string) (bool, error) {
	changes := map[string]interface{}{
		"shipment_id":       shipmentID,
		"provider_order_id": providerOrderID,
	}
	if awb != "" {
		changes["awb_number"] = awb
	}
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND shipment_id IS NULL AND status <> ?", id, model.StatusCancelled).
		UpdateColumns(changes)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) SetAWB(ctx context.Context, id, awb string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).UpdateColumn("awb_number", awb).Error
}
