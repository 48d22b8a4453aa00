package repository

import (
	"context"

	"shop_backend/internal/domain/product/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id string) (*model.Product, error)
	// GetByIDs 批量读取，不存在的ID不出现在结果中
	GetByIDs(ctx context.Context, ids []string) (map[string]*model.Product, error)
	// Adjust 单条语句调整库存与销量，均以 0 为下限；商品不存在时返回 false
	Adjust(ctx context.Context, productID string, stockDelta, soldDelta int) (bool, error)
	// RecordAdjustment 写入调整流水，已存在时返回 false
	RecordAdjustment(ctx context.Context, adj *model.InventoryAdjustment) (bool, error)
	WithTx(tx *gorm.DB) ProductRepository
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) WithTx(tx *gorm.DB) ProductRepository {
	return &productRepository{db: tx}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*model.Product, error) {
	var products []model.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*model.Product, len(products))
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (r *productRepository) Adjust(ctx context.Context, productID string, stockDelta, soldDelta int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", productID).
		UpdateColumns(map[string]interface{}{
			"stock_quantity": floorAtZero("stock_quantity", stockDelta),
			"sold_count":     floorAtZero("sold_count", soldDelta),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *productRepository) RecordAdjustment(ctx context.Context, adj *model.InventoryAdjustment) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(adj)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// floorAtZero CASE 表达式在 postgres 与 sqlite 中均可用
func floorAtZero(column string, delta int) clause.Expr {
	return gorm.Expr("CASE WHEN "+column+" + ? < 0 THEN 0 ELSE "+column+" + ? END", delta, delta)
}
