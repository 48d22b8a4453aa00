package service

import (
	"context"
	"sort"

	"shop_backend/internal/domain/product/model"
	"shop_backend/internal/domain/product/repository"
	"shop_backend/internal/pkg/apperr"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Line 订单行对库存的影响
type Line struct {
	ProductID string
	Quantity  int
}

// InventoryService 按订单状态调整商品库存与销量
type InventoryService struct {
	repo   repository.ProductRepository
	logger *zap.Logger
}

func NewInventoryService(repo repository.ProductRepository, logger *zap.Logger) *InventoryService {
	return &InventoryService{repo: repo, logger: logger}
}

// Adjust 调整单个商品，商品不存在时跳过
func (s *InventoryService) Adjust(ctx context.Context, productID string, stockDelta, soldDelta int) error {
	ok, err := s.repo.Adjust(ctx, productID, stockDelta, soldDelta)
	if err != nil {
		return apperr.Persistence(err, "adjust inventory")
	}
	if !ok {
		s.logger.Warn("inventory adjustment skipped, product not found", zap.String("product", productID))
	}
	return nil
}

// ApplyDelivered 送达：库存 -q，销量 +q
func (s *InventoryService) ApplyDelivered(ctx context.Context, tx *gorm.DB, orderID string, lines []Line) error {
	return s.apply(ctx, tx, orderID, model.AdjustmentDelivered, lines, -1)
}

// ApplyReturned 退货批准：库存 +q，销量 -q
func (s *InventoryService) ApplyReturned(ctx context.Context, tx *gorm.DB, orderID string, lines []Line) error {
	return s.apply(ctx, tx, orderID, model.AdjustmentReturned, lines, 1)
}

// apply 在调用方事务内执行；同一商品的多行先合并，流水已存在的商品跳过
func (s *InventoryService) apply(ctx context.Context, tx *gorm.DB, orderID, kind string, lines []Line, sign int) error {
	repo := s.repo.WithTx(tx)
	txSvc := &InventoryService{repo: repo, logger: s.logger}

	for _, l := range mergeLines(lines) {
		recorded, err := repo.RecordAdjustment(ctx, &model.InventoryAdjustment{
			OrderID:    orderID,
			ProductID:  l.ProductID,
			Kind:       kind,
			StockDelta: sign * l.Quantity,
			SoldDelta:  -sign * l.Quantity,
		})
		if err != nil {
			return apperr.Persistence(err, "record inventory adjustment")
		}
		if !recorded {
			s.logger.Info("inventory adjustment already applied",
				zap.String("order", orderID),
				zap.String("product", l.ProductID),
				zap.String("kind", kind),
			)
			continue
		}
		if err := txSvc.Adjust(ctx, l.ProductID, sign*l.Quantity, -sign*l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func mergeLines(lines []Line) []Line {
	qty := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity <= 0 {
			continue
		}
		qty[l.ProductID] += l.Quantity
	}
	out := make([]Line, 0, len(qty))
	for id, q := range qty {
		out = append(out, Line{ProductID: id, Quantity: q})
	}
	// 固定顺序，避免并发事务交叉加锁
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
