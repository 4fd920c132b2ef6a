// Package commission 佣金计算
//
// 全系统唯一的佣金舍入规则：四舍五入（round-half-up），整数运算，
// 订单项佣金、推广者佣金、商家实得都必须经过这里计算，避免多处舍入产生偏差。
package commission

import (
	"errors"
	"math"
)

var ErrInvalidInput = errors.New("佣金参数不合法")

const (
	MinRate = 0
	MaxRate = 100
)

// Split 单件与整行的分账结果
type Split struct {
	CommissionPerUnit int64 `json:"commission_per_unit"`
	VendorNetPerUnit  int64 `json:"vendor_net_per_unit"`
	Quantity          int64 `json:"quantity"`
}

// Subtotal 行小计（顾客支付）
func (s Split) Subtotal() int64 {
	return (s.CommissionPerUnit + s.VendorNetPerUnit) * s.Quantity
}

// CommissionTotal 整行佣金
func (s Split) CommissionTotal() int64 {
	return s.CommissionPerUnit * s.Quantity
}

// VendorNetTotal 整行商家实得
func (s Split) VendorNetTotal() int64 {
	return s.VendorNetPerUnit * s.Quantity
}

// Calculate 计算单件佣金与商家实得
//
//	commissionPerUnit = round(unitPrice * rate / 100)
//	vendorNetPerUnit  = unitPrice - commissionPerUnit
//
// 对任意合法输入都满足 commissionPerUnit + vendorNetPerUnit == unitPrice
func Calculate(unitPrice, quantity, ratePercent int64) (Split, error) {
	if unitPrice < 0 || quantity < 1 || ratePercent < MinRate || ratePercent > MaxRate {
		return Split{}, ErrInvalidInput
	}
	// unitPrice * 100 不能溢出，quantity 相乘也一样
	if unitPrice > math.MaxInt64/MaxRate || unitPrice > math.MaxInt64/quantity {
		return Split{}, ErrInvalidInput
	}

	perUnit := roundHalfUp(unitPrice*ratePercent, 100)
	return Split{
		CommissionPerUnit: perUnit,
		VendorNetPerUnit:  unitPrice - perUnit,
		Quantity:          quantity,
	}, nil
}

// roundHalfUp 非负整数除法，.5 向上取整；先取商和余数，不做加法，分子接近上限时也不会溢出
func roundHalfUp(numerator, denominator int64) int64 {
	q, r := numerator/denominator, numerator%denominator
	if r*2 >= denominator {
		q++
	}
	return q
}
