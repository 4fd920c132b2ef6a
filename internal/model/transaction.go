package model

import (
	"time"
)

// ============================================================================
// 流水类型常量
// ============================================================================

const (
	TransactionTypeSale       = "sale"       // 商家销售入账
	TransactionTypeCommission = "commission" // 推广佣金入账
	TransactionTypeWithdrawal = "withdrawal" // 提现出账
)

// ============================================================================
// 钱包流水实体
// ============================================================================

// Transaction 钱包流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. Amount 永远为正数，方向由 Type 决定（withdrawal 为出账）
// 3. 某用户所有流水的有符号金额之和 == 该用户钱包余额
type Transaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	Amount        int64     `gorm:"not null" json:"amount"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Description   string    `gorm:"type:varchar(256)" json:"description"`
	ReferenceID   string    `gorm:"type:varchar(64);index" json:"reference_id"` // 订单号或提现单号
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// SignedAmount 按类型带符号的金额
func (t Transaction) SignedAmount() int64 {
	if t.Type == TransactionTypeWithdrawal {
		return -t.Amount
	}
	return t.Amount
}
