package model

import (
	"time"
)

const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusApproved = "approved"
	WithdrawalStatusRejected = "rejected"
)

const (
	PaymentMethodBank   = "bank"
	PaymentMethodMobile = "mobile"
	PaymentMethodCard   = "card"
)

var PaymentMethods = []string{PaymentMethodBank, PaymentMethodMobile, PaymentMethodCard}

var ValidWithdrawalTransitions = map[string][]string{
	WithdrawalStatusPending: {WithdrawalStatusApproved, WithdrawalStatusRejected},
}

func CanWithdrawalTransitionTo(current, target string) bool {
	return containsStatus(ValidWithdrawalTransitions[current], target)
}

func IsPaymentMethod(method string) bool {
	return containsStatus(PaymentMethods, method)
}

// Withdrawal 提现申请表
// 申请时不扣余额，管理员审批通过时才扣款并写流水
type Withdrawal struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo   string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	UserID         int64      `gorm:"index;not null" json:"user_id"`
	Amount         int64      `gorm:"not null" json:"amount"`
	PaymentMethod  string     `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentDetails string     `gorm:"type:varchar(256);not null" json:"payment_details"`
	Status         string     `gorm:"type:varchar(20);index;not null" json:"status"`
	ReviewedBy     *int64     `json:"reviewed_by,omitempty"`
	ReviewNote     string     `gorm:"type:varchar(256)" json:"review_note,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}
