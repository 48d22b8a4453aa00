package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	couponRepo "shop_backend/internal/domain/coupon/repository"
	"shop_backend/internal/domain/order/model"
	"shop_backend/internal/domain/order/repository"
	productService "shop_backend/internal/domain/product/service"
	userModel "shop_backend/internal/domain/user/model"
	userRepo "shop_backend/internal/domain/user/repository"
	"shop_backend/internal/pkg/apperr"
	"shop_backend/internal/pkg/events"
	"shop_backend/internal/pkg/notify"
	"shop_backend/internal/pkg/shipping"
	"shop_backend/internal/pkg/uploader"
	"shop_backend/internal/pkg/worker"
	"shop_backend/pkg/logger"
	"shop_backend/pkg/metrics"
	"shop_backend/pkg/response"
	"shop_backend/pkg/security"
	"shop_backend/pkg/utils"
)

// 与 return_reason / note 列长度一致
var (
	returnReasonField = security.TextField{Name: "reason", MaxLength: 500, Required: true}
	statusNoteField   = security.TextField{Name: "note", MaxLength: 255}
)

// Actor 发起操作的用户
type Actor struct {
	UserID string
	Admin  bool
}

func (a Actor) String() string {
	if a.Admin {
		return "admin:" + a.UserID
	}
	return "user:" + a.UserID
}

// ReturnInput 退货申请，ItemIDs 为空表示整单退货
type ReturnInput struct {
	Reason  string   `json:"reason" binding:"required"`
	ItemIDs []string `json:"itemIds"`
}

// ShippingResult 物流扩展操作的返回
type ShippingResult struct {
	Action  string `json:"action"`
	AWB     string `json:"awbCode,omitempty"`
	Courier string `json:"courierName,omitempty"`
	URL     string `json:"url,omitempty"`
}

// 物流扩展操作
const (
	ShippingActionAWB      = "awb"
	ShippingActionPickup   = "pickup"
	ShippingActionLabel    = "label"
	ShippingActionInvoice  = "invoice"
	ShippingActionManifest = "manifest"
)

const maxCodeAttempts = 3

type OrderService interface {
	// PreviewOrder 仅计价，不落库也不消耗任何计数
	PreviewOrder(ctx context.Context, userID string, req PriceRequest) (*PricedOrder, error)
	CreateOrder(ctx context.Context, userID string, req PriceRequest) (*model.Order, error)
	GetOrder(ctx context.Context, code string, actor Actor) (*model.Order, error)
	ListMyOrders(ctx context.Context, userID string, p utils.Pagination) (*utils.PageResult, error)
	ListOrders(ctx context.Context, status string, p utils.Pagination) (*utils.PageResult, error)
	UpdateStatus(ctx context.Context, code, status string, actor Actor, note string) (*model.Order, error)
	CancelOrder(ctx context.Context, code string, actor Actor) (*model.Order, error)
	RequestReturn(ctx context.Context, code string, actor Actor, in ReturnInput) (*model.Order, error)
	GetInvoice(ctx context.Context, code string, actor Actor) (*Invoice, error)
	TrackOrder(ctx context.Context, code string, actor Actor) (*shipping.Tracking, error)
	ShippingAction(ctx context.Context, code, action string) (*ShippingResult, error)
}

// SubscriptionInvalidator 折扣计数变更后清理会员缓存
type SubscriptionInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// CouponInvalidator 优惠券计数变更后清理按优惠码的缓存
type CouponInvalidator interface {
	Invalidate(ctx context.Context, code string)
}

// Dependencies 订单服务依赖；Shipping/Events/Uploader 为 nil 表示未启用
type Dependencies struct {
	DB            *gorm.DB
	Orders        repository.OrderRepository
	Users         userRepo.UserRepository
	Coupons       couponRepo.CouponRepository
	Inventory     *productService.InventoryService
	Pricer        *Pricer
	Subscriptions SubscriptionInvalidator
	CouponCache   CouponInvalidator
	Dispatcher    worker.Dispatcher
	Shipping      shipping.Gateway
	Notifier      notify.Notifier
	Events        events.Publisher
	Uploader      uploader.Uploader
	Metrics       *metrics.MetricsCollector
	Logger        *zap.Logger

	// CountCouponRedemptions 开启后下单事务内条件自增优惠券 usedCount
	CountCouponRedemptions bool
}

type orderService struct {
	Dependencies
	now func() time.Time
}

func NewOrderService(d Dependencies) OrderService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLogNotifier(d.Logger)
	}
	if d.Dispatcher == nil {
		d.Dispatcher = worker.NewInlineDispatcher(d.Logger, 0, nil)
	}
	return &orderService{Dependencies: d, now: time.Now}
}

func (s *orderService) PreviewOrder(ctx context.Context, userID string, req PriceRequest) (*PricedOrder, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Pricer.Price(ctx, req, user, s.now())
}

func (s *orderService) CreateOrder(ctx context.Context, userID string, req PriceRequest) (*model.Order, error) {
	now := s.now()
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	priced, err := s.Pricer.Price(ctx, req, user, now)
	if err != nil {
		return nil, err
	}

	addr, err := s.Users.GetAddress(ctx, userID, req.ShippingAddressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("shipping address %s not found", req.ShippingAddressID)
		}
		return nil, apperr.Persistence(err, "load shipping address")
	}

	order := &model.Order{
		UserID:            userID,
		ShippingAddressID: addr.ID,
		Items:             priced.Items,
		Payment: model.PaymentInfo{
			Method:        paymentMethod(req.PaymentMethod),
			Status:        "pending",
			OriginalPrice: priced.OriginalPrice,
		},
		TotalPrice:   priced.TotalPrice,
		TaxTotal:     priced.TaxTotal,
		Subscription: priced.Subscription,
		Status:       model.StatusPending,
		AWBNumber:    utils.NewAWBPlaceholder(),
		Version:      1,
	}
	if priced.Coupon != nil {
		order.Coupon = model.CouponSnapshot{
			Code:           priced.Coupon.Code,
			DiscountType:   priced.Coupon.DiscountType,
			DiscountValue:  priced.Coupon.DiscountValue,
			DiscountAmount: priced.Coupon.DiscountAmount,
		}
	}
	actor := Actor{UserID: userID}

	for attempt := 1; ; attempt++ {
		order.OrderCode = utils.NewOrderCode()
		order.InvoiceCode = utils.NewInvoiceCode(now)
		order.History = []model.StatusHistory{{To: model.StatusPending, Actor: actor.String()}}

		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.persistNewOrder(ctx, tx, order, priced, now)
		})
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < maxCodeAttempts {
			logger.FromContext(ctx, s.Logger).Warn("order code collision, regenerating", zap.String("order", order.OrderCode))
			continue
		}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Persistence(err, "create order")
	}

	if order.Subscription.Applied && s.Subscriptions != nil {
		s.Subscriptions.Invalidate(ctx, userID)
	}
	if priced.Coupon != nil && s.CountCouponRedemptions && s.CouponCache != nil {
		s.CouponCache.Invalidate(ctx, priced.Coupon.Code)
	}
	s.Metrics.RecordOrderCreated()
	logger.FromContext(ctx, s.Logger).Info("order created",
		zap.String("order", order.OrderCode),
		zap.String("user", userID),
		zap.String("total", order.TotalPrice.StringFixed(2)),
		zap.Bool("subscription_discount", order.Subscription.Applied),
		zap.String("coupon", order.Coupon.Code),
	)

	s.dispatchCreated(ctx, order, user)
	return order, nil
}

// persistNewOrder 订单、订单行、会员计数、优惠券计数在同一事务内写入
func (s *orderService) persistNewOrder(ctx context.Context, tx *gorm.DB, order *model.Order, priced *PricedOrder, now time.Time) error {
	if priced.Subscription.Applied {
		ok, err := s.Users.WithTx(tx).RecordDiscountUsage(ctx, order.UserID, now)
		if err != nil {
			return apperr.Persistence(err, "record subscription discount")
		}
		if !ok {
			return apperr.Conflict("subscription is no longer active")
		}
	}

	if priced.Coupon != nil && s.CountCouponRedemptions {
		ok, err := s.Coupons.WithTx(tx).IncrementUsage(ctx, priced.Coupon.CouponID)
		if err != nil {
			return apperr.Persistence(err, "record coupon redemption")
		}
		if !ok {
			return apperr.BusinessRule("coupon %s usage limit reached", priced.Coupon.Code).WithCode(response.ErrCouponInvalid)
		}
	}

	return s.Orders.WithTx(tx).Create(ctx, order)
}

func (s *orderService) GetOrder(ctx context.Context, code string, actor Actor) (*model.Order, error) {
	return s.loadForActor(ctx, code, actor)
}

func (s *orderService) ListMyOrders(ctx context.Context, userID string, p utils.Pagination) (*utils.PageResult, error) {
	offset, limit := p.GetPageOffset()
	orders, total, err := s.Orders.List(ctx, repository.ListFilter{UserID: userID}, offset, limit)
	if err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}
	return utils.NewPageResult(orders, total, p), nil
}

func (s *orderService) ListOrders(ctx context.Context, status string, p utils.Pagination) (*utils.PageResult, error) {
	if status != "" {
		st, ok := model.ParseStatus(status)
		if !ok {
			return nil, apperr.Validation("unknown order status %q", status)
		}
		status = st.String()
	}
	offset, limit := p.GetPageOffset()
	orders, total, err := s.Orders.List(ctx, repository.ListFilter{Status: status}, offset, limit)
	if err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}
	return utils.NewPageResult(orders, total, p), nil
}

func (s *orderService) UpdateStatus(ctx context.Context, code, status string, actor Actor, note string) (*model.Order, error) {
	target, ok := model.ParseStatus(status)
	if !ok {
		return nil, apperr.Validation("unknown order status %q", status)
	}
	if !actor.Admin {
		return nil, apperr.Forbidden("only admins can set order status")
	}
	note, err := statusNoteField.Clean(note)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	order, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if target == model.StatusReturnPending {
		return nil, apperr.BusinessRule("returns must be requested by the customer")
	}
	return s.transition(ctx, order, target, actor, note, nil)
}

func (s *orderService) CancelOrder(ctx context.Context, code string, actor Actor) (*model.Order, error) {
	order, err := s.loadForActor(ctx, code, actor)
	if err != nil {
		return nil, err
	}
	if order.Status != model.StatusCancelled && !order.Status.Cancellable() {
		return nil, apperr.Conflict("order %s is %s and can no longer be cancelled", order.OrderCode, order.Status)
	}
	return s.transition(ctx, order, model.StatusCancelled, actor, "", nil)
}

func (s *orderService) RequestReturn(ctx context.Context, code string, actor Actor, in ReturnInput) (*model.Order, error) {
	reason, err := returnReasonField.Clean(in.Reason)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	in.Reason = reason
	order, err := s.loadForActor(ctx, code, actor)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID {
		return nil, apperr.Forbidden("only the customer can request a return")
	}
	if order.Status != model.StatusDelivered {
		return nil, apperr.Conflict("order %s is %s, only delivered orders can be returned", order.OrderCode, order.Status)
	}

	owned := make(map[string]bool, len(order.Items))
	for _, it := range order.Items {
		owned[it.ID] = true
	}
	for _, id := range in.ItemIDs {
		if !owned[id] {
			return nil, apperr.Validation("item %s does not belong to order %s", id, order.OrderCode)
		}
	}
	return s.transition(ctx, order, model.StatusReturnPending, actor, in.Reason, &in)
}

func (s *orderService) GetInvoice(ctx context.Context, code string, actor Actor) (*Invoice, error) {
	order, err := s.loadForActor(ctx, code, actor)
	if err != nil {
		return nil, err
	}
	if order.Status == model.StatusCancelled {
		return nil, apperr.BusinessRule("order %s is cancelled", order.OrderCode)
	}
	return BuildInvoice(order), nil
}

func (s *orderService) TrackOrder(ctx context.Context, code string, actor Actor) (*shipping.Tracking, error) {
	order, err := s.loadForActor(ctx, code, actor)
	if err != nil {
		return nil, err
	}
	if s.Shipping == nil {
		return nil, apperr.BusinessRule("shipping integration is disabled")
	}
	if order.ShipmentID == nil {
		return nil, apperr.BusinessRule("order %s has not been shipped yet", order.OrderCode)
	}
	tracking, err := s.Shipping.Track(ctx, order.AWBNumber)
	if err != nil {
		logger.FromContext(ctx, s.Logger).Warn("shipment tracking failed", zap.String("order", order.OrderCode), zap.Error(err))
		return nil, apperr.External(err, "shipping provider unavailable")
	}
	return tracking, nil
}

func (s *orderService) ShippingAction(ctx context.Context, code, action string) (*ShippingResult, error) {
	if s.Shipping == nil {
		return nil, apperr.BusinessRule("shipping integration is disabled")
	}
	order, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if order.ShipmentID == nil {
		return nil, apperr.BusinessRule("order %s has no shipment yet", order.OrderCode)
	}
	shipmentID := *order.ShipmentID

	res := &ShippingResult{Action: action}
	switch action {
	case ShippingActionAWB:
		var a *shipping.AWBAssignment
		if a, err = s.Shipping.AssignAWB(ctx, shipmentID); err == nil {
			res.AWB, res.Courier = a.AWBCode, a.CourierName
			if err = s.Orders.SetAWB(ctx, order.ID, a.AWBCode); err != nil {
				return nil, apperr.Persistence(err, "save awb")
			}
		}
	case ShippingActionPickup:
		err = s.Shipping.GeneratePickup(ctx, shipmentID)
	case ShippingActionLabel:
		res.URL, err = s.Shipping.GenerateLabel(ctx, shipmentID)
	case ShippingActionInvoice:
		providerID := shipmentID
		if order.ProviderOrderID != nil {
			providerID = *order.ProviderOrderID
		}
		res.URL, err = s.Shipping.PrintInvoice(ctx, providerID)
	case ShippingActionManifest:
		res.URL, err = s.Shipping.GenerateManifest(ctx, shipmentID)
	default:
		return nil, apperr.Validation("unknown shipping action %q", action)
	}
	if err != nil {
		logger.FromContext(ctx, s.Logger).Warn("shipping action failed",
			zap.String("order", order.OrderCode),
			zap.String("action", action),
			zap.Error(err),
		)
		return nil, apperr.External(err, "shipping provider request failed")
	}
	return res, nil
}

// transition 状态变更与库存调整在同一事务内完成，外部副作用在提交后投递
func (s *orderService) transition(ctx context.Context, order *model.Order, to model.Status, actor Actor, note string, ret *ReturnInput) (*model.Order, error) {
	from := order.Status
	if from == to {
		return order, nil
	}
	if !from.CanTransitionTo(to) {
		return nil, apperr.Conflict("cannot move order %s from %s to %s", order.OrderCode, from, to)
	}

	now := s.now()
	changes := map[string]interface{}{"status": to}
	itemChanges := map[string]interface{}{}
	switch to {
	case model.StatusReturnPending:
		changes["return_reason"] = ret.Reason
		changes["return_status"] = model.ReturnPending
		changes["return_requested_at"] = now
		itemChanges["return_requested"] = true
		itemChanges["return_quantity"] = gorm.Expr("quantity")
		itemChanges["return_reason"] = ret.Reason
		itemChanges["return_status"] = model.ReturnPending
	case model.StatusReturnApproved:
		changes["return_status"] = model.ReturnApproved
		itemChanges["return_status"] = model.ReturnApproved
	case model.StatusReturnRejected:
		changes["return_status"] = model.ReturnRejected
		changes["return_resolved_at"] = now
		itemChanges["return_status"] = model.ReturnRejected
	case model.StatusReturnCompleted:
		changes["return_status"] = model.ReturnCompleted
		changes["return_resolved_at"] = now
		itemChanges["return_status"] = model.ReturnCompleted
	}

	var itemIDs []string
	if ret != nil {
		itemIDs = ret.ItemIDs
	} else {
		itemIDs = returnedItemIDs(order)
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Orders.WithTx(tx)
		ok, err := repo.UpdateVersioned(ctx, order.ID, order.Version, changes)
		if err != nil {
			return apperr.Persistence(err, "update order status")
		}
		if !ok {
			return apperr.Conflict("order %s was modified concurrently, reload and retry", order.OrderCode).
				WithCode(response.ErrOrderConflict)
		}

		if err := repo.AppendHistory(ctx, &model.StatusHistory{
			OrderID: order.ID,
			From:    from,
			To:      to,
			Actor:   actor.String(),
			Note:    note,
		}); err != nil {
			return apperr.Persistence(err, "append status history")
		}

		if len(itemChanges) > 0 {
			if err := repo.MarkItemsReturn(ctx, order.ID, itemIDs, itemChanges); err != nil {
				return apperr.Persistence(err, "update return items")
			}
		}

		switch to {
		case model.StatusDelivered:
			return s.Inventory.ApplyDelivered(ctx, tx, order.ID, deliveredLines(order))
		case model.StatusReturnApproved:
			return s.Inventory.ApplyReturned(ctx, tx, order.ID, returnedLines(order))
		}
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Persistence(err, "transition order")
	}

	s.Metrics.RecordTransition(from.String(), to.String())
	logger.FromContext(ctx, s.Logger).Info("order status changed",
		zap.String("order", order.OrderCode),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("actor", actor.String()),
	)

	updated, err := s.Orders.GetByCode(ctx, order.OrderCode)
	if err != nil {
		logger.FromContext(ctx, s.Logger).Warn("reload order after transition failed", zap.String("order", order.OrderCode), zap.Error(err))
		order.Status = to
		order.Version++
		updated = order
	}

	s.dispatchTransition(ctx, updated, from, to, actor)
	return updated, nil
}

func (s *orderService) load(ctx context.Context, code string) (*model.Order, error) {
	order, err := s.Orders.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order %s not found", code).WithCode(response.ErrOrderNotFound)
		}
		return nil, apperr.Persistence(err, "load order")
	}
	return order, nil
}

// loadForActor 非本人订单按不存在处理
func (s *orderService) loadForActor(ctx context.Context, code string, actor Actor) (*model.Order, error) {
	order, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && order.UserID != actor.UserID {
		return nil, apperr.NotFound("order %s not found", code).WithCode(response.ErrOrderNotFound)
	}
	return order, nil
}

func (s *orderService) loadUser(ctx context.Context, userID string) (*userModel.User, error) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found").WithCode(response.ErrUserNotFound)
		}
		return nil, apperr.Persistence(err, "load user")
	}
	return user, nil
}

func paymentMethod(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "" {
		return "cod"
	}
	return m
}

func deliveredLines(o *model.Order) []productService.Line {
	lines := make([]productService.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, productService.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

// returnedLines 仅退回申请退货的订单行，未标记任何行时按整单处理
func returnedLines(o *model.Order) []productService.Line {
	var lines []productService.Line
	for _, it := range o.Items {
		if !it.ReturnRequested {
			continue
		}
		qty := it.ReturnQuantity
		if qty <= 0 || qty > it.Quantity {
			qty = it.Quantity
		}
		lines = append(lines, productService.Line{ProductID: it.ProductID, Quantity: qty})
	}
	if len(lines) == 0 {
		return deliveredLines(o)
	}
	return lines
}

func returnedItemIDs(o *model.Order) []string {
	var ids []string
	for _, it := range o.Items {
		if it.ReturnRequested {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
