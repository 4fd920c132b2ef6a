package model

import (
	"time"
)

const (
	ProductStatusPending  = "pending"
	ProductStatusApproved = "approved"
	ProductStatusRejected = "rejected"
)

const (
	MinCommissionRate = 1
	MaxCommissionRate = 50
)

// Product 商品表
// 由商家创建；只有管理员审核和结算时累加 Sales 会修改它
type Product struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	VendorID       int64     `gorm:"index;not null" json:"vendor_id"`
	Title          string    `gorm:"type:varchar(255);not null" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	Price          int64     `gorm:"not null" json:"price"`           // 最小货币单位
	CommissionRate int64     `gorm:"not null" json:"commission_rate"` // 整数百分比 1-50
	Category       string    `gorm:"type:varchar(64);index" json:"category"`
	Status         string    `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	Sales          int64     `gorm:"not null;default:0" json:"sales"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// ValidProductTransitions 商品只能从 pending 审核到 approved/rejected
var ValidProductTransitions = map[string][]string{
	ProductStatusPending: {ProductStatusApproved, ProductStatusRejected},
}

func CanProductTransitionTo(current, target string) bool {
	return containsStatus(ValidProductTransitions[current], target)
}

func containsStatus(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
