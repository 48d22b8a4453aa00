package service

import (
	"github.com/shopspring/decimal"

	"shop_backend/internal/domain/order/model"
	"shop_backend/internal/pkg/config"
)

// TaxCalculator 含税价模式下的 GST 计算，税率按单价分档
type TaxCalculator struct {
	Threshold decimal.Decimal
	LowRate   decimal.Decimal
	HighRate  decimal.Decimal
}

func NewTaxCalculator(cfg config.PricingConfig) TaxCalculator {
	return TaxCalculator{
		Threshold: decimal.NewFromFloat(cfg.TaxThreshold),
		LowRate:   decimal.NewFromFloat(cfg.LowTaxRate),
		HighRate:  decimal.NewFromFloat(cfg.HighTaxRate),
	}
}

// DefaultTaxCalculator 999 以下 5%，其余 12%
func DefaultTaxCalculator() TaxCalculator {
	return TaxCalculator{
		Threshold: decimal.NewFromInt(999),
		LowRate:   decimal.NewFromInt(5),
		HighRate:  decimal.NewFromInt(12),
	}
}

// LineTax 单件税额 = price * rate / (100 + rate)，保留两位小数
func (t TaxCalculator) LineTax(unitPrice decimal.Decimal) decimal.Decimal {
	rate := t.HighRate
	if unitPrice.LessThan(t.Threshold) {
		rate = t.LowRate
	}
	return unitPrice.Mul(rate).Div(hundred.Add(rate)).Round(2)
}

// OrderTax 基于订单行已冻结的税额汇总，不重新计算
func (t TaxCalculator) OrderTax(items []model.OrderItem) decimal.Decimal {
	return model.TaxFromItems(items)
}

var hundred = decimal.NewFromInt(100)
