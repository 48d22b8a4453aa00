package service

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shop_backend/internal/domain/order/model"
	userModel "shop_backend/internal/domain/user/model"
	"shop_backend/internal/pkg/events"
	"shop_backend/internal/pkg/notify"
	"shop_backend/internal/pkg/shipping"
	"shop_backend/internal/pkg/worker"
	"shop_backend/pkg/logger"
)

// 异步任务名称
const (
	TaskShipmentCreate   = "shipment.create"
	TaskShipmentCancel   = "shipment.cancel"
	TaskNotifyConfirmed  = "notify.confirmed"
	TaskNotifyAdminOrder = "notify.admin_order"
	TaskNotifyStatus     = "notify.status"
	TaskNotifyAdminState = "notify.admin_status"
	TaskPublishEvent     = "event.publish"
)

// dispatchCreated 下单成功后的确认通知与事件
func (s *orderService) dispatchCreated(ctx context.Context, order *model.Order, user *userModel.User) {
	traceID := logger.TraceID(ctx)
	msg := orderMessage(order, user)

	s.Dispatcher.AddTask(worker.Task{Name: TaskNotifyConfirmed, Key: order.OrderCode, TraceID: traceID, Run: func(ctx context.Context) error {
		return s.Notifier.SendOrderConfirmed(ctx, msg)
	}})
	s.Dispatcher.AddTask(worker.Task{Name: TaskNotifyAdminOrder, Key: order.OrderCode, TraceID: traceID, Run: func(ctx context.Context) error {
		return s.Notifier.SendAdminOrderNotification(ctx, msg)
	}})
	s.publish(traceID, events.OrderEvent{
		Type:       events.TypeOrderCreated,
		OrderCode:  order.OrderCode,
		UserID:     order.UserID,
		To:         order.Status.String(),
		TotalPrice: order.TotalPrice,
		Actor:      Actor{UserID: order.UserID}.String(),
		OccurredAt: s.now(),
	})
}

// dispatchTransition 状态已提交，以下任务失败只记录日志并按策略重试
func (s *orderService) dispatchTransition(ctx context.Context, order *model.Order, from, to model.Status, actor Actor) {
	traceID := logger.TraceID(ctx)
	code := order.OrderCode

	if s.Shipping != nil {
		switch {
		case to == model.StatusProcessing && order.ShipmentID == nil:
			s.Dispatcher.AddTask(worker.Task{Name: TaskShipmentCreate, Key: code, TraceID: traceID, Run: func(ctx context.Context) error {
				return s.createShipment(ctx, code)
			}})
		case to == model.StatusCancelled && from != model.StatusPending:
			// 回写运单与取消可能并发，执行时重新读取订单
			s.Dispatcher.AddTask(worker.Task{Name: TaskShipmentCancel, Key: code, TraceID: traceID, Run: func(ctx context.Context) error {
				return s.cancelShipment(ctx, code)
			}})
		}
	}

	s.Dispatcher.AddTask(worker.Task{Name: TaskNotifyStatus, Key: code, TraceID: traceID, Run: func(ctx context.Context) error {
		msg := notify.StatusMessage{
			OrderMessage: orderMessage(order, s.lookupUser(ctx, order.UserID)),
			From:         from.String(),
			To:           to.String(),
		}
		if to == model.StatusDelivered {
			msg.Invoice = s.invoiceAttachment(ctx, order)
		}
		return s.Notifier.SendOrderStatus(ctx, msg)
	}})
	s.Dispatcher.AddTask(worker.Task{Name: TaskNotifyAdminState, Key: code, TraceID: traceID, Run: func(ctx context.Context) error {
		return s.Notifier.SendAdminOrderStatusNotification(ctx, notify.StatusMessage{
			OrderMessage: orderMessage(order, nil),
			From:         from.String(),
			To:           to.String(),
		})
	}})

	s.publish(traceID, events.OrderEvent{
		Type:       events.TypeOrderStatusChanged,
		OrderCode:  code,
		UserID:     order.UserID,
		From:       from.String(),
		To:         to.String(),
		TotalPrice: order.TotalPrice,
		Actor:      actor.String(),
		OccurredAt: s.now(),
	})
}

// createShipment 重试前重新读取订单，已有发货单时跳过，避免重复下单
func (s *orderService) createShipment(ctx context.Context, code string) error {
	order, err := s.Orders.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return worker.Permanent(err)
		}
		return err
	}
	if order.ShipmentID != nil {
		return nil
	}
	if order.Status != model.StatusProcessing {
		logger.FromContext(ctx, s.Logger).Info("skip shipment creation, order moved on",
			zap.String("order", code), zap.String("status", order.Status.String()))
		return nil
	}

	addr, err := s.Users.GetAddress(ctx, order.UserID, order.ShippingAddressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return worker.Permanent(errors.Wrap(err, "shipping address"))
		}
		return err
	}
	user := s.lookupUser(ctx, order.UserID)

	req := shipping.ShipmentRequest{
		OrderCode:     order.OrderCode,
		OrderDate:     order.CreatedAt,
		CustomerName:  addr.Name,
		Phone:         addr.Phone,
		PaymentMethod: order.Payment.Method,
		SubTotal:      order.TotalPrice,
		Address: shipping.Address{
			Line1:   addr.Line1,
			Line2:   addr.Line2,
			City:    addr.City,
			State:   addr.State,
			Pincode: addr.Pincode,
			Country: addr.Country,
		},
	}
	if user != nil {
		req.Email = user.Email
		if req.CustomerName == "" {
			req.CustomerName = user.Nickname
		}
	}
	for _, it := range order.Items {
		req.Items = append(req.Items, shipping.ShipmentItem{
			Name:         it.Name,
			SKU:          it.SKU,
			HSN:          it.HSN,
			Units:        it.Quantity,
			SellingPrice: it.Price,
		})
	}

	shipment, err := s.Shipping.CreateShipment(ctx, req)
	if err != nil {
		logger.FromContext(ctx, s.Logger).Warn("create shipment failed", zap.String("order", code), zap.Error(err))
		return gatewayError(err)
	}

	claimed, err := s.Orders.SetShipment(ctx, order.ID, shipment.ShipmentID, shipment.ProviderOrderID, shipment.AWBCode)
	if err != nil {
		logger.FromContext(ctx, s.Logger).Error("save shipment failed",
			zap.String("order", code),
			zap.String("shipment", shipment.ShipmentID),
			zap.Error(err),
		)
		return worker.Permanent(err)
	}
	if !claimed {
		// 物流下单期间订单被取消（或已有运单），撤销刚创建的发货单
		logger.FromContext(ctx, s.Logger).Warn("order changed during shipment creation, cancelling shipment",
			zap.String("order", code),
			zap.String("shipment", shipment.ShipmentID),
		)
		target := providerTarget(shipment.ShipmentID, shipment.ProviderOrderID)
		s.Dispatcher.AddTask(worker.Task{Name: TaskShipmentCancel, Key: code, TraceID: logger.TraceID(ctx), Run: func(ctx context.Context) error {
			return s.cancelAtProvider(ctx, code, target)
		}})
		return nil
	}

	awb := shipment.AWBCode
	if awb == "" {
		if a, err := s.Shipping.AssignAWB(ctx, shipment.ShipmentID); err != nil {
			logger.FromContext(ctx, s.Logger).Warn("assign awb failed", zap.String("order", code), zap.Error(err))
		} else if err := s.Orders.SetAWB(ctx, order.ID, a.AWBCode); err != nil {
			logger.FromContext(ctx, s.Logger).Warn("save awb failed", zap.String("order", code), zap.Error(err))
		} else {
			awb = a.AWBCode
		}
	}
	logger.FromContext(ctx, s.Logger).Info("shipment created",
		zap.String("order", code),
		zap.String("shipment", shipment.ShipmentID),
		zap.String("awb", awb),
	)
	return nil
}

// cancelShipment 订单取消后撤销物流单，没有运单时直接返回
func (s *orderService) cancelShipment(ctx context.Context, code string) error {
	order, err := s.Orders.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return worker.Permanent(err)
		}
		return err
	}
	if order.ShipmentID == nil {
		return nil
	}
	providerOrderID := ""
	if order.ProviderOrderID != nil {
		providerOrderID = *order.ProviderOrderID
	}
	return s.cancelAtProvider(ctx, code, providerTarget(*order.ShipmentID, providerOrderID))
}

func (s *orderService) cancelAtProvider(ctx context.Context, code, target string) error {
	if err := s.Shipping.CancelShipment(ctx, target); err != nil {
		logger.FromContext(ctx, s.Logger).Warn("cancel shipment failed",
			zap.String("order", code),
			zap.String("shipment", target),
			zap.Error(err),
		)
		return gatewayError(err)
	}
	return nil
}

// providerTarget 物流商按其订单号取消，缺失时退回发货单号
func providerTarget(shipmentID, providerOrderID string) string {
	if providerOrderID != "" {
		return providerOrderID
	}
	return shipmentID
}

// invoiceAttachment 上传失败时仍以附件形式发送
func (s *orderService) invoiceAttachment(ctx context.Context, order *model.Order) *notify.Attachment {
	inv := BuildInvoice(order)
	att := &notify.Attachment{
		Filename:    inv.Filename(),
		ContentType: "text/plain; charset=utf-8",
		Data:        inv.Text(),
	}
	if s.Uploader != nil {
		url, err := s.Uploader.UploadBytes(ctx, "invoices/"+att.Filename, att.Data, att.ContentType)
		if err != nil {
			logger.FromContext(ctx, s.Logger).Warn("upload invoice failed", zap.String("order", order.OrderCode), zap.Error(err))
		} else {
			att.URL = url
		}
	}
	return att
}

func (s *orderService) publish(traceID string, event events.OrderEvent) {
	if s.Events == nil {
		return
	}
	s.Dispatcher.AddTask(worker.Task{Name: TaskPublishEvent, Key: event.OrderCode, TraceID: traceID, Run: func(ctx context.Context) error {
		return s.Events.Publish(ctx, event)
	}})
}

func (s *orderService) lookupUser(ctx context.Context, userID string) *userModel.User {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		logger.FromContext(ctx, s.Logger).Warn("load user for notification failed", zap.String("user", userID), zap.Error(err))
		return nil
	}
	return user
}

func orderMessage(order *model.Order, user *userModel.User) notify.OrderMessage {
	msg := notify.OrderMessage{
		OrderCode:  order.OrderCode,
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice,
	}
	if user != nil {
		msg.CustomerName = user.Nickname
		msg.CustomerEmail = user.Email
	}
	for _, it := range order.Items {
		msg.Items = append(msg.Items, notify.ItemLine{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}
	return msg
}

// gatewayError 4xx 拒绝不重试
func gatewayError(err error) error {
	if shipping.IsRetryable(err) {
		return err
	}
	return worker.Permanent(err)
}
