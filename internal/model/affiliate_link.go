package model

import (
	"time"
)

// AffiliateLink 推广链接表
// 每个 (推广者, 商品) 只允许一条链接，Code 全局唯一
type AffiliateLink struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID      int64      `gorm:"not null;uniqueIndex:idx_affiliate_product" json:"affiliate_id"`
	ProductID        int64      `gorm:"not null;uniqueIndex:idx_affiliate_product;index" json:"product_id"`
	Code             string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Clicks           int64      `gorm:"not null;default:0" json:"clicks"`
	Conversions      int64      `gorm:"not null;default:0" json:"conversions"`
	CommissionEarned int64      `gorm:"not null;default:0" json:"commission_earned"`
	Active           bool       `gorm:"not null;default:true" json:"active"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AffiliateLink) TableName() string {
	return "affiliate_links"
}

// Usable 链接是否还能用于归因（未停用且未过期）
func (l *AffiliateLink) Usable(now time.Time) bool {
	if !l.Active {
		return false
	}
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return false
	}
	return true
}
