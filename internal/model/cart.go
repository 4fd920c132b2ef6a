package model

import (
	"time"
)

// CartLine 购物车行，只存在于结算会话期间，不落库
type CartLine struct {
	ProductID      int64  `json:"product_id"`
	Title          string `json:"title"`
	UnitPrice      int64  `json:"unit_price"`
	Quantity       int64  `json:"quantity"`
	CommissionRate int64  `json:"commission_rate"`
	VendorID       int64  `json:"vendor_id"`
}

// Cart 客户端购物车快照，存放在 Redis
type Cart struct {
	ID           string     `json:"id"`
	Lines        []CartLine `json:"lines"`
	ReferralCode string     `json:"referral_code,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TotalAmount 购物车总价
func (c *Cart) TotalAmount() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.UnitPrice * l.Quantity
	}
	return total
}
