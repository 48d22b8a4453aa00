package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	couponModel "shop_backend/internal/domain/coupon/model"
	couponRepo "shop_backend/internal/domain/coupon/repository"
	couponService "shop_backend/internal/domain/coupon/service"
	"shop_backend/internal/domain/order/model"
	"shop_backend/internal/domain/order/repository"
	productModel "shop_backend/internal/domain/product/model"
	productRepo "shop_backend/internal/domain/product/repository"
	productService "shop_backend/internal/domain/product/service"
	userModel "shop_backend/internal/domain/user/model"
	userRepo "shop_backend/internal/domain/user/repository"
	userService "shop_backend/internal/domain/user/service"
	"shop_backend/internal/pkg/apperr"
	"shop_backend/internal/pkg/notify"
	"shop_backend/internal/pkg/shipping"
	"shop_backend/internal/pkg/testutil"
	"shop_backend/internal/pkg/worker"
	"shop_backend/pkg/cache"
	"shop_backend/pkg/utils"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type mockGateway struct{ mock.Mock }

func (m *mockGateway) CreateShipment(ctx context.Context, req shipping.ShipmentRequest) (*shipping.Shipment, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*shipping.Shipment)
	return s, args.Error(1)
}

func (m *mockGateway) CancelShipment(ctx context.Context, ids ...string) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *mockGateway) AssignAWB(ctx context.Context, shipmentID string) (*shipping.AWBAssignment, error) {
	args := m.Called(ctx, shipmentID)
	a, _ := args.Get(0).(*shipping.AWBAssignment)
	return a, args.Error(1)
}

func (m *mockGateway) GeneratePickup(ctx context.Context, shipmentIDs ...string) error {
	return m.Called(ctx, shipmentIDs).Error(0)
}

func (m *mockGateway) GenerateLabel(ctx context.Context, shipmentIDs ...string) (string, error) {
	args := m.Called(ctx, shipmentIDs)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) PrintInvoice(ctx context.Context, providerOrderIDs ...string) (string, error) {
	args := m.Called(ctx, providerOrderIDs)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) GenerateManifest(ctx context.Context, shipmentIDs ...string) (string, error) {
	args := m.Called(ctx, shipmentIDs)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Track(ctx context.Context, awb string) (*shipping.Tracking, error) {
	args := m.Called(ctx, awb)
	t, _ := args.Get(0).(*shipping.Tracking)
	return t, args.Error(1)
}

// recordingNotifier 记录发出的通知
type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []notify.OrderMessage
	status    []notify.StatusMessage
	admin     []notify.StatusMessage
}

func (n *recordingNotifier) SendOrderConfirmed(_ context.Context, msg notify.OrderMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, msg)
	return nil
}

func (n *recordingNotifier) SendOrderStatus(_ context.Context, msg notify.StatusMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = append(n.status, msg)
	return nil
}

func (n *recordingNotifier) SendAdminOrderNotification(context.Context, notify.OrderMessage) error {
	return nil
}

func (n *recordingNotifier) SendAdminOrderStatusNotification(_ context.Context, msg notify.StatusMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, msg)
	return nil
}

func (n *recordingNotifier) lastStatus() notify.StatusMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.status) == 0 {
		return notify.StatusMessage{}
	}
	return n.status[len(n.status)-1]
}

type fixture struct {
	db       *gorm.DB
	svc      OrderService
	orders   repository.OrderRepository
	users    userRepo.UserRepository
	products productRepo.ProductRepository
	coupons  couponRepo.CouponRepository
	gateway  *mockGateway
	notifier *recordingNotifier

	customer *userModel.User
	admin    Actor
	addr     *userModel.Address
	shirt    *productModel.Product // 899
	jacket   *productModel.Product // 1000
	coat     *productModel.Product // 1500
}

func newFixture(t *testing.T, opts ...func(*Dependencies)) *fixture {
	t.Helper()
	db := testutil.NewDB(t,
		&userModel.User{}, &userModel.Address{},
		&productModel.Product{}, &productModel.InventoryAdjustment{},
		&couponModel.Coupon{},
		&model.Order{}, &model.OrderItem{}, &model.StatusHistory{},
	)
	ctx := context.Background()

	f := &fixture{
		db:       db,
		orders:   repository.NewOrderRepository(db),
		users:    userRepo.NewUserRepository(db),
		products: productRepo.NewProductRepository(db),
		coupons:  couponRepo.NewCouponRepository(db),
		gateway:  &mockGateway{},
		notifier: &recordingNotifier{},
		admin:    Actor{UserID: "admin-1", Admin: true},
	}

	f.customer = &userModel.User{Mobile: "9876543210", Nickname: "Asha Rao", Email: "asha@example.com", Role: userModel.RoleUser}
	require.NoError(t, f.users.Create(ctx, f.customer))
	f.addr = &userModel.Address{UserID: f.customer.ID, Name: "Asha Rao", Phone: "9876543210",
		Line1: "12 MG Road", City: "Bengaluru", State: "KA", Pincode: "560001", Country: "India"}
	require.NoError(t, f.users.CreateAddress(ctx, f.addr))

	f.shirt = &productModel.Product{Name: "Shirt", SKU: "SH-1", Price: d("899"), StockQuantity: 10}
	f.jacket = &productModel.Product{Name: "Jacket", SKU: "JK-1", Price: d("1000"), StockQuantity: 10}
	f.coat = &productModel.Product{Name: "Coat", SKU: "CT-1", Price: d("1500"), StockQuantity: 1}
	for _, p := range []*productModel.Product{f.shirt, f.jacket, f.coat} {
		require.NoError(t, f.products.Create(ctx, p))
	}

	deps := Dependencies{
		DB:            db,
		Orders:        f.orders,
		Users:         f.users,
		Coupons:       f.coupons,
		Inventory:     productService.NewInventoryService(f.products, zap.NewNop()),
		Pricer:        NewPricer(f.products, couponService.NewEvaluator(f.coupons), userService.NewSubscriptionPolicy(d("249")), DefaultTaxCalculator()),
		Subscriptions: userService.NewUserService(f.users, nil, zap.NewNop()),
		Dispatcher:    worker.NewInlineDispatcher(zap.NewNop(), time.Second, nil),
		Shipping:      f.gateway,
		Notifier:      f.notifier,
		Logger:        zap.NewNop(),
	}
	for _, o := range opts {
		o(&deps)
	}
	svc := NewOrderService(deps).(*orderService)
	svc.now = func() time.Time { return now }
	f.svc = svc
	return f
}

func (f *fixture) customerActor() Actor { return Actor{UserID: f.customer.ID} }

func (f *fixture) subscribe(t *testing.T) {
	expiry := now.AddDate(0, 1, 0)
	require.NoError(t, f.users.UpdateSubscription(context.Background(), f.customer.ID, userModel.Subscription{
		IsSubscribed: true, Cost: d("499"), Type: userModel.SubscriptionMonthly, Expiry: &expiry,
	}))
}

func (f *fixture) addCoupon(t *testing.T, mutate func(c *couponModel.Coupon)) *couponModel.Coupon {
	c := &couponModel.Coupon{
		Code:         "SAVE10",
		DiscountType: couponModel.DiscountPercentage,
		Discount:     d("10"),
		ValidFrom:    now.Add(-24 * time.Hour),
		ValidUntil:   now.Add(24 * time.Hour),
		MinPurchase:  d("500"),
		Status:       couponModel.StatusActive,
		Visibility:   couponModel.VisibilityPublic,
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, f.coupons.Create(context.Background(), c))
	return c
}

func (f *fixture) request(items ...CartItem) PriceRequest {
	return PriceRequest{Items: items, ShippingAddressID: f.addr.ID, PaymentMethod: "Prepaid"}
}

func (f *fixture) place(t *testing.T, items ...CartItem) *model.Order {
	order, err := f.svc.CreateOrder(context.Background(), f.customer.ID, f.request(items...))
	require.NoError(t, err)
	return order
}

func (f *fixture) stock(t *testing.T, id string) (int, int) {
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity, p.SoldCount
}

func TestCreateOrderScenarioA(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t)
	f.addCoupon(t, nil)

	req := f.request(CartItem{ProductID: f.jacket.ID, Quantity: 2})
	req.CouponCode = "save10"
	order, err := f.svc.CreateOrder(context.Background(), f.customer.ID, req)
	require.NoError(t, err)

	assert.True(t, d("2000").Equal(order.Payment.OriginalPrice))
	assert.Equal(t, "SAVE10", order.Coupon.Code)
	assert.True(t, d("200").Equal(order.Coupon.DiscountAmount))
	assert.True(t, order.Subscription.Applied)
	assert.True(t, d("249").Equal(order.Subscription.Amount))
	assert.True(t, d("499").Equal(order.Subscription.CostAtTimeOfUse))
	assert.True(t, d("1551").Equal(order.TotalPrice), "total %s", order.TotalPrice)
	assert.Equal(t, model.StatusPending, order.Status)
	assert.Regexp(t, `^ORD[A-Z0-9]{9}$`, order.OrderCode)
	assert.NotEmpty(t, order.InvoiceCode)
	assert.NotEmpty(t, order.AWBNumber)

	u, err := f.users.GetByID(context.Background(), f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Subscription.DiscountsUsed)
	require.NotNil(t, u.Subscription.LastDiscountUsed)

	// 未开启计数时，优惠券使用次数不变
	c, err := f.coupons.GetByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UsedCount)

	assert.Len(t, f.notifier.confirmed, 1)
	assert.Equal(t, "asha@example.com", f.notifier.confirmed[0].CustomerEmail)
}

func TestCreateOrderScenarioBTaxSnapshot(t *testing.T) {
	f := newFixture(t)
	order := f.place(t,
		CartItem{ProductID: f.shirt.ID, Quantity: 1, Size: "M"},
		CartItem{ProductID: f.coat.ID, Quantity: 2},
	)
	assert.True(t, d("364.23").Equal(order.TaxTotal), "tax %s", order.TaxTotal)

	stored, err := f.orders.GetByCode(context.Background(), order.OrderCode)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "Shirt", stored.Items[0].Name)
	assert.Equal(t, "M", stored.Items[0].Size)
	assert.True(t, d("42.81").Equal(stored.Items[0].GST))
	assert.True(t, d("160.71").Equal(stored.Items[1].GST))
	assert.True(t, stored.TaxTotal.Equal(model.TaxFromItems(stored.Items)))
	assert.True(t, d("3899").Equal(stored.TotalPrice))
	assert.False(t, stored.Subscription.Applied)
	require.Len(t, stored.History, 1)
	assert.Equal(t, model.StatusPending, stored.History[0].To)
}

func TestCreateOrderScenarioDUsageLimit(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(t, func(c *couponModel.Coupon) { c.UsageLimit = 5; c.UsedCount = 5 })

	req := f.request(CartItem{ProductID: f.jacket.ID, Quantity: 2})
	req.CouponCode = "SAVE10"
	_, err := f.svc.CreateOrder(context.Background(), f.customer.ID, req)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBusinessRule))
	assert.Contains(t, err.Error(), "usage limit reached")

	_, err = f.svc.PreviewOrder(context.Background(), f.customer.ID, req)
	assert.Contains(t, err.Error(), "usage limit reached")

	page, err := f.svc.ListMyOrders(context.Background(), f.customer.ID, utils.Pagination{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.Total)
}

func TestCreateOrderCountsCouponWhenEnabled(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.CountCouponRedemptions = true })
	f.addCoupon(t, func(c *couponModel.Coupon) { c.UsageLimit = 1 })

	req := f.request(CartItem{ProductID: f.jacket.ID, Quantity: 1})
	req.CouponCode = "SAVE10"
	_, err := f.svc.CreateOrder(context.Background(), f.customer.ID, req)
	require.NoError(t, err)

	c, err := f.coupons.GetByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)

	_, err = f.svc.CreateOrder(context.Background(), f.customer.ID, req)
	assert.True(t, apperr.Is(err, apperr.KindBusinessRule))
}

func TestCountedCouponInvalidatesCachedLookup(t *testing.T) {
	store := cache.NewMemoryCache()
	f := newFixture(t, func(d *Dependencies) {
		d.CountCouponRedemptions = true
		cached := couponRepo.NewCachedCouponRepository(d.Coupons, store, zap.NewNop())
		d.CouponCache = cached
		pricer := *d.Pricer
		pricer.coupons = couponService.NewEvaluator(cached)
		d.Pricer = &pricer
	})
	f.addCoupon(t, func(c *couponModel.Coupon) { c.UsageLimit = 1 })
	ctx := context.Background()

	req := f.request(CartItem{ProductID: f.jacket.ID, Quantity: 1})
	req.CouponCode = "SAVE10"
	_, err := f.svc.PreviewOrder(ctx, f.customer.ID, req) // 写入缓存
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, f.customer.ID, req)
	require.NoError(t, err)

	// 名额用完后预览立即拒绝，不等缓存过期
	_, err = f.svc.PreviewOrder(ctx, f.customer.ID, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage limit reached")
}

func TestCreateOrderMinimumPurchase(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(t, func(c *couponModel.Coupon) { c.MinPurchase = d("5000") })

	req := f.request(CartItem{ProductID: f.shirt.ID, Quantity: 1})
	req.CouponCode = "SAVE10"
	_, err := f.svc.CreateOrder(context.Background(), f.customer.ID, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum purchase of 5000.00 required")
}

func TestCreateOrderExpiredSubscriptionNotApplied(t *testing.T) {
	f := newFixture(t)
	expired := now.Add(-time.Hour)
	require.NoError(t, f.users.UpdateSubscription(context.Background(), f.customer.ID, userModel.Subscription{
		IsSubscribed: true, Expiry: &expired,
	}))

	order := f.place(t, CartItem{ProductID: f.jacket.ID, Quantity: 1})
	assert.False(t, order.Subscription.Applied)
	assert.True(t, d("1000").Equal(order.TotalPrice))

	u, err := f.users.GetByID(context.Background(), f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Subscription.DiscountsUsed)
}

func TestTotalClampedAtZero(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t)
	f.addCoupon(t, func(c *couponModel.Coupon) {
		c.DiscountType = couponModel.DiscountFlat
		c.Discount = d("800")
		c.MinPurchase = d("0")
	})

	req := f.request(CartItem{ProductID: f.shirt.ID, Quantity: 1})
	req.CouponCode = "SAVE10"
	priced, err := f.svc.PreviewOrder(context.Background(), f.customer.ID, req)
	require.NoError(t, err)
	assert.True(t, priced.TotalPrice.IsZero(), "total %s", priced.TotalPrice)
	assert.True(t, priced.Subscription.Applied)

	// 预览不消耗会员折扣次数
	u, err := f.users.GetByID(context.Background(), f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Subscription.DiscountsUsed)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, f.customer.ID, PriceRequest{ShippingAddressID: f.addr.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.CreateOrder(ctx, f.customer.ID, PriceRequest{Items: []CartItem{{ProductID: f.shirt.ID, Quantity: 1}}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.CreateOrder(ctx, f.customer.ID, f.request(CartItem{ProductID: f.shirt.ID, Quantity: 0}))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.CreateOrder(ctx, f.customer.ID, f.request(CartItem{ProductID: "00000000-0000-0000-0000-000000000000", Quantity: 1}))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	req := f.request(CartItem{ProductID: f.shirt.ID, Quantity: 1})
	req.ShippingAddressID = "00000000-0000-0000-0000-000000000000"
	_, err = f.svc.CreateOrder(ctx, f.customer.ID, req)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// 格式错误的 ID 属于请求错误，不会送到 uuid 主键列
	_, err = f.svc.CreateOrder(ctx, f.customer.ID, f.request(CartItem{ProductID: "shirt-1", Quantity: 1}))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	req = f.request(CartItem{ProductID: f.shirt.ID, Quantity: 1})
	req.ShippingAddressID = "home"
	_, err = f.svc.CreateOrder(ctx, f.customer.ID, req)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestFulfilmentAndReturnFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, CartItem{ProductID: f.shirt.ID, Quantity: 3}, CartItem{ProductID: f.coat.ID, Quantity: 2})

	f.gateway.On("CreateShipment", mock.Anything, mock.MatchedBy(func(r shipping.ShipmentRequest) bool {
		return r.OrderCode == order.OrderCode && r.Address.Pincode == "560001" && len(r.Items) == 2
	})).Return(&shipping.Shipment{ShipmentID: "SHP-1", ProviderOrderID: "PO-1", AWBCode: "AWB123"}, nil).Once()

	updated, err := f.svc.UpdateStatus(ctx, order.OrderCode, "processing", f.admin, "")
	require.NoError(t, err)
	f.gateway.AssertExpectations(t)

	updated, err = f.svc.GetOrder(ctx, order.OrderCode, f.customerActor())
	require.NoError(t, err)
	require.NotNil(t, updated.ShipmentID)
	assert.Equal(t, "SHP-1", *updated.ShipmentID)
	assert.Equal(t, "AWB123", updated.AWBNumber)

	_, err = f.svc.UpdateStatus(ctx, order.OrderCode, "shipped", f.admin, "")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, order.OrderCode, "delivered", f.admin, "")
	require.NoError(t, err)

	stock, sold := f.stock(t, f.shirt.ID)
	assert.Equal(t, 7, stock)
	assert.Equal(t, 3, sold)
	stock, sold = f.stock(t, f.coat.ID)
	assert.Equal(t, 0, stock, "stock floors at zero")
	assert.Equal(t, 2, sold)

	delivered := f.notifier.lastStatus()
	assert.Equal(t, "delivered", delivered.To)
	require.NotNil(t, delivered.Invoice)
	assert.Contains(t, string(delivered.Invoice.Data), order.InvoiceCode)

	// 再次设置为相同状态不会重复扣减库存
	_, err = f.svc.UpdateStatus(ctx, order.OrderCode, "delivered", f.admin, "")
	require.NoError(t, err)
	stock, _ = f.stock(t, f.shirt.ID)
	assert.Equal(t, 7, stock)

	shirtItem := updated.Items[0].ID
	_, err = f.svc.RequestReturn(ctx, order.OrderCode, f.customerActor(), ReturnInput{Reason: "wrong size", ItemIDs: []string{shirtItem}})
	require.NoError(t, err)

	returned, err := f.svc.UpdateStatus(ctx, order.OrderCode, "return_approved", f.admin, "checked")
	require.NoError(t, err)
	assert.Equal(t, model.ReturnApproved, returned.Return.Status)
	assert.Equal(t, "wrong size", returned.Return.Reason)
	assert.True(t, returned.Items[0].ReturnRequested)
	assert.Equal(t, model.ReturnApproved, returned.Items[0].ReturnStatus)
	assert.False(t, returned.Items[1].ReturnRequested)

	// 仅退回申请退货的商品
	stock, sold = f.stock(t, f.shirt.ID)
	assert.Equal(t, 10, stock)
	assert.Equal(t, 0, sold)
	stock, sold = f.stock(t, f.coat.ID)
	assert.Equal(t, 0, stock)
	assert.Equal(t, 2, sold)

	completed, err := f.svc.UpdateStatus(ctx, order.OrderCode, "return_completed", f.admin, "")
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, completed.Return.Status)
	require.NotNil(t, completed.Return.ResolvedAt)

	statuses := make([]model.Status, 0, len(completed.History))
	for _, h := range completed.History {
		statuses = append(statuses, h.To)
	}
	assert.Equal(t, []model.Status{
		model.StatusPending, model.StatusProcessing, model.StatusShipped, model.StatusDelivered,
		model.StatusReturnPending, model.StatusReturnApproved, model.StatusReturnCompleted,
	}, statuses)
	assert.Len(t, f.notifier.admin, 6)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("owner cancels pending order", func(t *testing.T) {
		order := f.place(t, CartItem{ProductID: f.shirt.ID, Quantity: 1})
		got, err := f.svc.CancelOrder(ctx, order.OrderCode, f.customerActor())
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, got.Status)
		f.gateway.AssertNotCalled(t, "CancelShipment", mock.Anything, mock.Anything)

		again, err := f.svc.CancelOrder(ctx, order.OrderCode, f.customerActor())
		require.NoError(t, err)
		assert.Equal(t, got.Version, again.Version)
	})

	t.Run("other customer cannot see order", func(t *testing.T) {
		order := f.place(t, CartItem{ProductID: f.shirt.ID, Quantity: 1})
		_, err := f.svc.CancelOrder(ctx, order.OrderCode, Actor{UserID: "someone-else"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("delivered order cannot be cancelled", func(t *testing.T) {
		f.gateway.On("CreateShipment", mock.Anything, mock.Anything).
			Return(nil, &shipping.APIError{Op: "create", Status: http.StatusUnprocessableEntity}).Once()

		order := f.place(t, CartItem{ProductID: f.shirt.ID, Quantity: 1})
		for _, s := range []string{"processing", "out-for-delivery", "delivered"} {
			_, err := f.svc.UpdateStatus(ctx, order.OrderCode, s, f.admin, "")
			require.NoError(t, err, s)
		}
		before, err := f.svc.GetOrder(ctx, order.OrderCode, f.admin)
		require.NoError(t, err)

		_, err = f.svc.CancelOrder(ctx, order.OrderCode, f.admin)
		assert.True(t, apperr.Is(err, apperr.KindConflict))

		after, err := f.svc.GetOrder(ctx, order.OrderCode, f.admin)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDelivered, after.Status)
		assert.Equal(t, before.Version, after.Version)
	})
}

func TestScenarioCCancelSurvivesGatewayFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.On("CreateShipment", mock.Anything, mock.Anything).
		Return(&shipping.Shipment{ShipmentID: "SHP-9", ProviderOrderID: "PO-9"}, nil).Once()
	f.gateway.On("AssignAWB", mock.Anything, "SHP-9").
		Return(&shipping.AWBAssignment{AWBCode: "AWB999", CourierName: "Delhivery"}, nil).Once()
	f.gateway.On("CancelShipment", mock.Anything, []string{"PO-9"}).
		Return(&shipping.APIError{Op: "cancel", Status: http.StatusBadGateway}).Once()

	order := f.place(t, CartItem{ProductID: f.jacket.ID, Quantity: 1})
	_, err := f.svc.UpdateStatus(ctx, order.OrderCode, "processing", f.admin, "")
	require.NoError(t, err)

	cancelled, err := f.svc.CancelOrder(ctx, order.OrderCode, f.admin)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "AWB999", cancelled.AWBNumber)
	f.gateway.AssertExpectations(t)

	last := f.notifier.lastStatus()
	assert.Equal(t, "processing", last.From)
	assert.Equal(t, "cancelled", last.To)
}

func TestCancelDuringShipmentCreationCancelsNewShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, CartItem{ProductID: f.jacket.ID, Quantity: 1})

	// 物流商创建运单期间，客户取消了订单
	f.gateway.On("CreateShipment", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			_, err := f.svc.CancelOrder(ctx, order.OrderCode, f.customerActor())
			require.NoError(t, err)
		}).
		Return(&shipping.Shipment{ShipmentID: "SHP-7", ProviderOrderID: "PO-7", AWBCode: "AWB777"}, nil).Once()
	f.gateway.On("CancelShipment", mock.Anything, []string{"PO-7"}).Return(nil).Once()

	_, err := f.svc.UpdateStatus(ctx, order.OrderCode, "processing", f.admin, "")
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, order.OrderCode, f.admin)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Nil(t, got.ShipmentID)
	assert.Empty(t, got.AWBNumber)
	f.gateway.AssertExpectations(t)
	f.gateway.AssertNotCalled(t, "AssignAWB", mock.Anything, mock.Anything)
}

func TestCancelAfterShipmentSavedUsesStoredShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, CartItem{ProductID: f.jacket.ID, Quantity: 1})

	f.gateway.On("CreateShipment", mock.Anything, mock.Anything).
		Return(&shipping.Shipment{ShipmentID: "SHP-8", AWBCode: "AWB888"}, nil).Once()
	_, err := f.svc.UpdateStatus(ctx, order.OrderCode, "processing", f.admin, "")
	require.NoError(t, err)

	// 没有物流商订单号时按发货单号取消
	f.gateway.On("CancelShipment", mock.Anything, []string{"SHP-8"}).Return(nil).Once()
	_, err = f.svc.CancelOrder(ctx, order.OrderCode, f.customerActor())
	require.NoError(t, err)
	f.gateway.AssertExpectations(t)
}

func TestUpdateStatusRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, CartItem{ProductID: f.shirt.ID, Quantity: 1})

	_, err := f.svc.UpdateStatus(ctx, order.OrderCode, "teleported", f.admin, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.UpdateStatus(ctx, order.OrderCode, "delivered", f.admin, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.UpdateStatus(ctx, order.OrderCode, "processing", f.customerActor(), "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.RequestReturn(ctx, order.OrderCode, f.customerActor(), ReturnInput{Reason: "changed mind"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.UpdateStatus(ctx, "ORDMISSING00", "processing", f.admin, "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestInvoiceUsesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, CartItem{ProductID: f.shirt.ID, Quantity: 2})

	// 商品改价不影响已下单的发票
	f.shirt.Price = d("1999")
	require.NoError(t, f.db.Save(f.shirt).Error)

	inv, err := f.svc.GetInvoice(ctx, order.OrderCode, f.customerActor())
	require.NoError(t, err)
	require.Len(t, inv.Lines, 1)
	assert.True(t, d("899").Equal(inv.Lines[0].UnitPrice))
	assert.True(t, d("42.81").Equal(inv.Lines[0].UnitGST))
	assert.True(t, d("85.62").Equal(inv.TaxTotal))
	assert.True(t, d("1798").Equal(inv.TotalPrice))
}

func TestTrackOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, CartItem{ProductID: f.shirt.ID, Quantity: 1})

	_, err := f.svc.TrackOrder(ctx, order.OrderCode, f.customerActor())
	assert.True(t, apperr.Is(err, apperr.KindBusinessRule))

	claimed, err := f.orders.SetShipment(ctx, order.ID, "SHP-2", "PO-2", "AWB222")
	require.NoError(t, err)
	require.True(t, claimed)
	f.gateway.On("Track", mock.Anything, "AWB222").
		Return(&shipping.Tracking{AWB: "AWB222", CurrentStatus: "IN TRANSIT"}, nil).Once()

	tracking, err := f.svc.TrackOrder(ctx, order.OrderCode, f.customerActor())
	require.NoError(t, err)
	assert.Equal(t, "IN TRANSIT", tracking.CurrentStatus)

	f.gateway.On("GenerateLabel", mock.Anything, []string{"SHP-2"}).Return("https://labels/2.pdf", nil).Once()
	res, err := f.svc.ShippingAction(ctx, order.OrderCode, ShippingActionLabel)
	require.NoError(t, err)
	assert.Equal(t, "https://labels/2.pdf", res.URL)

	_, err = f.svc.ShippingAction(ctx, order.OrderCode, "teleport")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
