package notify

import (
	"context"
	"fmt"

	"shop_backend/internal/pkg/push"
)

// PushNotifier 通过 App 推送通知用户，管理员通知走邮件
type PushNotifier struct {
	svc push.PushService
}

func NewPushNotifier(svc push.PushService) *PushNotifier {
	return &PushNotifier{svc: svc}
}

func (n *PushNotifier) SendOrderConfirmed(ctx context.Context, msg OrderMessage) error {
	return n.svc.PushToAccount(ctx, msg.UserID, push.Notification{
		Title: "Order placed",
		Body:  fmt.Sprintf("Your order %s has been placed", msg.OrderCode),
		Ext:   map[string]string{"orderId": msg.OrderCode},
	})
}

func (n *PushNotifier) SendOrderStatus(ctx context.Context, msg StatusMessage) error {
	return n.svc.PushToAccount(ctx, msg.UserID, push.Notification{
		Title: "Order update",
		Body:  fmt.Sprintf("Your order %s is now %s", msg.OrderCode, msg.To),
		Ext:   map[string]string{"orderId": msg.OrderCode, "status": msg.To},
	})
}

func (n *PushNotifier) SendAdminOrderNotification(context.Context, OrderMessage) error {
	return nil
}

func (n *PushNotifier) SendAdminOrderStatusNotification(context.Context, StatusMessage) error {
	return nil
}
