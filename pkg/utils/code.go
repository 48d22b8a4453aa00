package utils

import (
	"crypto/rand"
	"math/big"
	"time"
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	digits       = "0123456789"
)

// RandomString 从字符集中生成长度为 n 的随机串
func RandomString(charset string, n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(charset)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand 在受支持平台上不会失败
			panic(err)
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}

// NewOrderCode 订单号：ORD + 9 位大写字母数字
func NewOrderCode() string {
	return "ORD" + RandomString(alphanumeric, 9)
}

// NewInvoiceCode 发票号：INV + 日期 + 6 位随机
func NewInvoiceCode(now time.Time) string {
	return "INV" + now.Format("20060102") + RandomString(alphanumeric, 6)
}

// NewAWBPlaceholder 下单时生成的运单占位号，并非物流商确认的 AWB
func NewAWBPlaceholder() string {
	return "AWB" + RandomString(digits, 11)
}
