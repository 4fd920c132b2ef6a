package model

import (
	"time"
)

// 用户角色，由认证方提供，一个用户可以同时拥有多个非管理员角色
const (
	RoleVendor    = "vendor"
	RoleAffiliate = "affiliate"
	RoleAdmin     = "admin"
	RoleConsumer  = "consumer"
)

// Profile 用户资料表，钱包余额挂在这里
//
// 【重要】WalletBalance 只能被结算（入账）和提现审批（出账）修改，
// 每次修改都必须有一条对应的 Transaction 流水
type Profile struct {
	ID            int64     `gorm:"primaryKey" json:"id"` // 用户ID，认证方传入
	FullName      string    `gorm:"type:varchar(128)" json:"full_name"`
	Email         string    `gorm:"type:varchar(255)" json:"email"`
	WalletBalance int64     `gorm:"not null;default:0" json:"wallet_balance"`
	Version       int       `gorm:"not null;default:0" json:"version"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}
