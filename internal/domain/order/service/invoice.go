package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shop_backend/internal/domain/order/model"
)

type InvoiceLine struct {
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	HSN       string          `json:"hsn,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	UnitGST   decimal.Decimal `json:"unitGst"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Invoice 发票数据，全部取自订单快照
type Invoice struct {
	InvoiceCode          string          `json:"invoiceId"`
	OrderCode            string          `json:"orderId"`
	IssuedAt             time.Time       `json:"issuedAt"`
	Lines                []InvoiceLine   `json:"lines"`
	OriginalPrice        decimal.Decimal `json:"originalPrice"`
	CouponCode           string          `json:"couponCode,omitempty"`
	CouponDiscount       decimal.Decimal `json:"couponDiscount"`
	SubscriptionDiscount decimal.Decimal `json:"subscriptionDiscount"`
	TaxTotal             decimal.Decimal `json:"taxTotal"`
	TotalPrice           decimal.Decimal `json:"totalPrice"`
	PaymentMethod        string          `json:"paymentMethod"`
}

// BuildInvoice 使用订单行中保存的 GST，不按当前税率重新计算
func BuildInvoice(o *model.Order) *Invoice {
	inv := &Invoice{
		InvoiceCode:    o.InvoiceCode,
		OrderCode:      o.OrderCode,
		IssuedAt:       o.CreatedAt,
		OriginalPrice:  o.Payment.OriginalPrice,
		CouponCode:     o.Coupon.Code,
		CouponDiscount: o.Coupon.DiscountAmount,
		TaxTotal:       model.TaxFromItems(o.Items),
		TotalPrice:     o.TotalPrice,
		PaymentMethod:  o.Payment.Method,
	}
	if o.Subscription.Applied {
		inv.SubscriptionDiscount = o.Subscription.Amount
	}
	for _, it := range o.Items {
		inv.Lines = append(inv.Lines, InvoiceLine{
			Name:      it.Name,
			SKU:       it.SKU,
			HSN:       it.HSN,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
			UnitGST:   it.GST,
			LineTotal: it.LineTotal(),
		})
	}
	return inv
}

// Text 纯文本版发票，作为邮件附件
func (inv *Invoice) Text() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "TAX INVOICE %s\n", inv.InvoiceCode)
	fmt.Fprintf(&b, "Order: %s\nDate: %s\n\n", inv.OrderCode, inv.IssuedAt.Format("2006-01-02"))
	for _, l := range inv.Lines {
		fmt.Fprintf(&b, "%-32s x%-3d %10s  GST %8s  %10s\n",
			l.Name, l.Quantity, l.UnitPrice.StringFixed(2), l.UnitGST.StringFixed(2), l.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\n", inv.OriginalPrice.StringFixed(2))
	if inv.CouponCode != "" {
		fmt.Fprintf(&b, "Coupon %s: -%s\n", inv.CouponCode, inv.CouponDiscount.StringFixed(2))
	}
	if inv.SubscriptionDiscount.IsPositive() {
		fmt.Fprintf(&b, "Subscription discount: -%s\n", inv.SubscriptionDiscount.StringFixed(2))
	}
	fmt.Fprintf(&b, "GST included: %s\n", inv.TaxTotal.StringFixed(2))
	fmt.Fprintf(&b, "Total: %s\n", inv.TotalPrice.StringFixed(2))
	return []byte(b.String())
}

func (inv *Invoice) Filename() string {
	return "invoice-" + inv.InvoiceCode + ".txt"
}
