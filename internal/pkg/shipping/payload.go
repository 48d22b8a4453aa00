package shipping

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 占位包裹尺寸与重量（cm / kg），上游暂未维护商品体积
const (
	parcelLength  = 10
	parcelBreadth = 15
	parcelHeight  = 5
	parcelWeight  = 0.5
)

// ShipmentRequest 订单侧提供的发货信息，与 Shiprocket 字段解耦
type ShipmentRequest struct {
	OrderCode     string
	OrderDate     time.Time
	CustomerName  string
	Email         string
	Phone         string
	Address       Address
	PaymentMethod string
	SubTotal      decimal.Decimal
	Items         []ShipmentItem
}

type Address struct {
	Line1   string
	Line2   string
	City    string
	State   string
	Pincode string
	Country string
}

type ShipmentItem struct {
	Name         string
	SKU          string
	HSN          string
	Units        int
	SellingPrice decimal.Decimal
}

// Shipment 创建发货单后的返回
type Shipment struct {
	ProviderOrderID string `json:"providerOrderId"`
	ShipmentID      string `json:"shipmentId"`
	Status          string `json:"status"`
	AWBCode         string `json:"awbCode,omitempty"`
}

type AWBAssignment struct {
	AWBCode     string `json:"awbCode"`
	CourierName string `json:"courierName"`
}

type Tracking struct {
	AWB           string             `json:"awb"`
	CurrentStatus string             `json:"currentStatus"`
	Courier       string             `json:"courier,omitempty"`
	TrackURL      string             `json:"trackUrl,omitempty"`
	Activities    []TrackingActivity `json:"activities"`
}

type TrackingActivity struct {
	Date     string `json:"date"`
	Status   string `json:"status"`
	Activity string `json:"activity"`
	Location string `json:"location"`
}

type adhocOrderItem struct {
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Units        int             `json:"units"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	HSN          string          `json:"hsn,omitempty"`
}

type adhocOrder struct {
	OrderID             string           `json:"order_id"`
	OrderDate           string           `json:"order_date"`
	PickupLocation      string           `json:"pickup_location"`
	BillingCustomerName string           `json:"billing_customer_name"`
	BillingLastName     string           `json:"billing_last_name"`
	BillingAddress      string           `json:"billing_address"`
	BillingAddress2     string           `json:"billing_address_2,omitempty"`
	BillingCity         string           `json:"billing_city"`
	BillingPincode      string           `json:"billing_pincode"`
	BillingState        string           `json:"billing_state"`
	BillingCountry      string           `json:"billing_country"`
	BillingEmail        string           `json:"billing_email"`
	BillingPhone        string           `json:"billing_phone"`
	ShippingIsBilling   bool             `json:"shipping_is_billing"`
	OrderItems          []adhocOrderItem `json:"order_items"`
	PaymentMethod       string           `json:"payment_method"`
	SubTotal            decimal.Decimal  `json:"sub_total"`
	Length              float64          `json:"length"`
	Breadth             float64          `json:"breadth"`
	Height              float64          `json:"height"`
	Weight              float64          `json:"weight"`
}

// SplitName 拆分姓名：第一个空格前为名，其余为姓，缺省姓为 "."
func SplitName(full string) (first, last string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "", "."
	case 1:
		return fields[0], "."
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

// PaymentMode 货到付款映射为 COD，其余均为预付
func PaymentMode(method string) string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "cod", "cash_on_delivery", "cash on delivery":
		return "COD"
	default:
		return "Prepaid"
	}
}

func buildAdhocOrder(req ShipmentRequest, pickupLocation string) adhocOrder {
	first, last := SplitName(req.CustomerName)
	country := req.Address.Country
	if country == "" {
		country = "India"
	}

	items := make([]adhocOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, adhocOrderItem{
			Name:         it.Name,
			SKU:          it.SKU,
			Units:        it.Units,
			SellingPrice: it.SellingPrice,
			HSN:          it.HSN,
		})
	}

	return adhocOrder{
		OrderID:             req.OrderCode,
		OrderDate:           req.OrderDate.Format("2006-01-02 15:04"),
		PickupLocation:      pickupLocation,
		BillingCustomerName: first,
		BillingLastName:     last,
		BillingAddress:      req.Address.Line1,
		BillingAddress2:     req.Address.Line2,
		BillingCity:         req.Address.City,
		BillingPincode:      req.Address.Pincode,
		BillingState:        req.Address.State,
		BillingCountry:      country,
		BillingEmail:        req.Email,
		BillingPhone:        req.Phone,
		ShippingIsBilling:   true,
		OrderItems:          items,
		PaymentMethod:       PaymentMode(req.PaymentMethod),
		SubTotal:            req.SubTotal,
		Length:              parcelLength,
		Breadth:             parcelBreadth,
		Height:              parcelHeight,
		Weight:              parcelWeight,
	}
}
