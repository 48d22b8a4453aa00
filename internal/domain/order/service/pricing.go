package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	couponService "shop_backend/internal/domain/coupon/service"
	"shop_backend/internal/domain/order/model"
	productModel "shop_backend/internal/domain/product/model"
	userModel "shop_backend/internal/domain/user/model"
	userService "shop_backend/internal/domain/user/service"
	"shop_backend/internal/pkg/apperr"
	"shop_backend/pkg/utils"
)

// CartItem 下单请求中的商品行
type CartItem struct {
	ProductID string `json:"product" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// PriceRequest 计价输入
type PriceRequest struct {
	Items             []CartItem `json:"orderItems"`
	ShippingAddressID string     `json:"shippingAddress"`
	CouponCode        string     `json:"couponCode"`
	PaymentMethod     string     `json:"paymentMethod"`
}

// PricedOrder 计价结果，包含完整的优惠与税额明细
type PricedOrder struct {
	Items         []model.OrderItem          `json:"orderItems"`
	OriginalPrice decimal.Decimal            `json:"originalPrice"`
	Coupon        *couponService.Evaluation  `json:"coupon,omitempty"`
	Subscription  model.SubscriptionDiscount `json:"subscriptionDiscount"`
	TaxTotal      decimal.Decimal            `json:"taxTotal"`
	TotalPrice    decimal.Decimal            `json:"totalPrice"`
}

// ProductReader 计价所需的商品读取
type ProductReader interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*productModel.Product, error)
}

// CouponEvaluator 优惠券校验，只读
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code string, cartTotal decimal.Decimal, now time.Time) (*couponService.Evaluation, error)
}

// Pricer 计价流水线：优惠券 -> 会员折扣 -> 税额
// 不修改任何商品或优惠券数据
type Pricer struct {
	products ProductReader
	coupons  CouponEvaluator
	policy   userService.SubscriptionPolicy
	tax      TaxCalculator
}

func NewPricer(products ProductReader, coupons CouponEvaluator, policy userService.SubscriptionPolicy, tax TaxCalculator) *Pricer {
	return &Pricer{products: products, coupons: coupons, policy: policy, tax: tax}
}

func (p *Pricer) Price(ctx context.Context, req PriceRequest, user *userModel.User, now time.Time) (*PricedOrder, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation("orderItems are required")
	}
	if strings.TrimSpace(req.ShippingAddressID) == "" {
		return nil, apperr.Validation("shippingAddress is required")
	}
	if !utils.IsUUID(req.ShippingAddressID) {
		return nil, apperr.Validation("shippingAddress %q is not a valid id", req.ShippingAddressID)
	}

	ids := make([]string, 0, len(req.Items))
	for i, it := range req.Items {
		if it.ProductID == "" {
			return nil, apperr.Validation("orderItems[%d].product is required", i)
		}
		if !utils.IsUUID(it.ProductID) {
			return nil, apperr.Validation("orderItems[%d].product %q is not a valid id", i, it.ProductID)
		}
		if it.Quantity <= 0 {
			return nil, apperr.Validation("orderItems[%d].quantity must be positive", i)
		}
		ids = append(ids, it.ProductID)
	}

	products, err := p.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence(err, "load products")
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	original := decimal.Zero
	for i, it := range req.Items {
		prod, ok := products[it.ProductID]
		if !ok {
			return nil, apperr.NotFound("product %s not found", it.ProductID)
		}
		item := model.OrderItem{
			Position:  i,
			ProductID: prod.ID,
			Name:      prod.Name,
			SKU:       prod.SKU,
			HSN:       prod.HSN,
			Price:     prod.Price,
			Quantity:  it.Quantity,
			GST:       p.tax.LineTax(prod.Price),
			Size:      it.Size,
			Color:     it.Color,
			Image:     prod.Image,
		}
		original = original.Add(item.LineTotal())
		items = append(items, item)
	}

	priced := &PricedOrder{
		Items:         items,
		OriginalPrice: original,
		TaxTotal:      p.tax.OrderTax(items),
	}

	running := original
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		eval, err := p.coupons.Evaluate(ctx, code, original, now)
		if err != nil {
			return nil, err
		}
		priced.Coupon = eval
		running = clampZero(running.Sub(eval.DiscountAmount))
	}

	sub := p.policy.Apply(user, running, now)
	priced.Subscription = model.SubscriptionDiscount{
		Applied:         sub.Applied,
		Amount:          sub.Amount,
		CostAtTimeOfUse: sub.CostAtTimeOfUse,
	}
	priced.TotalPrice = sub.NewTotal
	return priced, nil
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
