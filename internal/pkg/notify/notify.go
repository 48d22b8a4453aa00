package notify

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Notifier 订单通知出口，调用方在事务提交后异步调用
type Notifier interface {
	SendOrderConfirmed(ctx context.Context, msg OrderMessage) error
	SendOrderStatus(ctx context.Context, msg StatusMessage) error
	SendAdminOrderNotification(ctx context.Context, msg OrderMessage) error
	SendAdminOrderStatusNotification(ctx context.Context, msg StatusMessage) error
}

type OrderMessage struct {
	OrderCode     string
	UserID        string
	CustomerName  string
	CustomerEmail string
	TotalPrice    decimal.Decimal
	Items         []ItemLine
}

type ItemLine struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

type StatusMessage struct {
	OrderMessage
	From    string
	To      string
	Invoice *Attachment // 仅送达通知携带
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
	URL         string // 已上传到对象存储时的地址
}

// Multi 依次调用所有通知渠道，单个渠道失败不影响其他渠道
type Multi []Notifier

func (m Multi) SendOrderConfirmed(ctx context.Context, msg OrderMessage) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.SendOrderConfirmed(ctx, msg))
	}
	return err
}

func (m Multi) SendOrderStatus(ctx context.Context, msg StatusMessage) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.SendOrderStatus(ctx, msg))
	}
	return err
}

func (m Multi) SendAdminOrderNotification(ctx context.Context, msg OrderMessage) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.SendAdminOrderNotification(ctx, msg))
	}
	return err
}

func (m Multi) SendAdminOrderStatusNotification(ctx context.Context, msg StatusMessage) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.SendAdminOrderStatusNotification(ctx, msg))
	}
	return err
}

// LogNotifier 仅记录日志，开发环境或未配置邮件时使用
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOrderConfirmed(_ context.Context, msg OrderMessage) error {
	n.logger.Info("order confirmed",
		zap.String("order", msg.OrderCode),
		zap.String("user", msg.UserID),
		zap.String("total", msg.TotalPrice.StringFixed(2)),
	)
	return nil
}

func (n *LogNotifier) SendOrderStatus(_ context.Context, msg StatusMessage) error {
	n.logger.Info("order status changed",
		zap.String("order", msg.OrderCode),
		zap.String("user", msg.UserID),
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.Bool("invoice", msg.Invoice != nil),
	)
	return nil
}

func (n *LogNotifier) SendAdminOrderNotification(_ context.Context, msg OrderMessage) error {
	n.logger.Info("admin: new order", zap.String("order", msg.OrderCode))
	return nil
}

func (n *LogNotifier) SendAdminOrderStatusNotification(_ context.Context, msg StatusMessage) error {
	n.logger.Info("admin: order status changed",
		zap.String("order", msg.OrderCode),
		zap.String("from", msg.From),
		zap.String("to", msg.To),
	)
	return nil
}
