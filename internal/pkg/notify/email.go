package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/wneessen/go-mail"

	"shop_backend/internal/pkg/config"
)

// Sender 邮件发送接口，*mail.Client 实现该接口，测试时替换
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type EmailNotifier struct {
	cfg    config.EmailConfig
	sender Sender
}

func NewEmailNotifier(cfg config.EmailConfig) (*EmailNotifier, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithPort(cfg.Port),
		mail.WithTimeout(timeout),
		mail.WithDialContextFunc(deadlineDialer(timeout)),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "init smtp client")
	}
	return &EmailNotifier{cfg: cfg, sender: client}, nil
}

func NewEmailNotifierWithSender(cfg config.EmailConfig, sender Sender) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, sender: sender}
}

// deadlineDialer 整个 SMTP 会话的读写不超过 timeout，也不超过 ctx 的截止时间
func deadlineDialer(timeout time.Duration) mail.DialContextFunc {
	d := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		deadline := time.Now().Add(timeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (n *EmailNotifier) SendOrderConfirmed(ctx context.Context, msg OrderMessage) error {
	if msg.CustomerEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("Order %s confirmed", msg.OrderCode)
	body := fmt.Sprintf("Hi %s,\n\nThanks for your order %s.\n\n%s\nTotal: %s\n",
		msg.CustomerName, msg.OrderCode, itemLines(msg.Items), msg.TotalPrice.StringFixed(2))
	return n.send(ctx, msg.CustomerEmail, subject, body, nil)
}

func (n *EmailNotifier) SendOrderStatus(ctx context.Context, msg StatusMessage) error {
	if msg.CustomerEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("Order %s is now %s", msg.OrderCode, msg.To)
	body := fmt.Sprintf("Hi %s,\n\nYour order %s moved from %s to %s.\n",
		msg.CustomerName, msg.OrderCode, msg.From, msg.To)
	if msg.Invoice != nil && msg.Invoice.URL != "" {
		body += fmt.Sprintf("\nInvoice: %s\n", msg.Invoice.URL)
	}
	return n.send(ctx, msg.CustomerEmail, subject, body, msg.Invoice)
}

func (n *EmailNotifier) SendAdminOrderNotification(ctx context.Context, msg OrderMessage) error {
	if n.cfg.AdminEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("New order %s", msg.OrderCode)
	body := fmt.Sprintf("Order %s placed by user %s.\n\n%s\nTotal: %s\n",
		msg.OrderCode, msg.UserID, itemLines(msg.Items), msg.TotalPrice.StringFixed(2))
	return n.send(ctx, n.cfg.AdminEmail, subject, body, nil)
}

func (n *EmailNotifier) SendAdminOrderStatusNotification(ctx context.Context, msg StatusMessage) error {
	if n.cfg.AdminEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("Order %s: %s -> %s", msg.OrderCode, msg.From, msg.To)
	body := fmt.Sprintf("Order %s (user %s) moved from %s to %s.\n", msg.OrderCode, msg.UserID, msg.From, msg.To)
	return n.send(ctx, n.cfg.AdminEmail, subject, body, nil)
}

func (n *EmailNotifier) send(ctx context.Context, to, subject, body string, attachment *Attachment) error {
	m, err := n.newMessage(to, subject, body, attachment)
	if err != nil {
		return err
	}
	if err := n.sender.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrapf(err, "send mail to %s", to)
	}
	return nil
}

// newMessage 地址经过解析校验，主题按 RFC 2047 编码
func (n *EmailNotifier) newMessage(to, subject, body string, attachment *Attachment) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, errors.Wrapf(err, "invalid sender %q", n.cfg.From)
	}
	if err := m.To(to); err != nil {
		return nil, errors.Wrapf(err, "invalid recipient %q", to)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	if attachment == nil || len(attachment.Data) == 0 {
		return m, nil
	}
	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := m.AttachReader(attachment.Filename, bytes.NewReader(attachment.Data),
		mail.WithFileContentType(mail.ContentType(contentType))); err != nil {
		return nil, errors.Wrap(err, "attach invoice")
	}
	return m, nil
}

func itemLines(items []ItemLine) string {
	var sb strings.Builder
	for _, it := range items {
		fmt.Fprintf(&sb, "  %d x %s @ %s\n", it.Quantity, it.Name, it.Price.StringFixed(2))
	}
	return sb.String()
}
