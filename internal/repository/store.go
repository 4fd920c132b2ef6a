package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store 持有一个 *gorm.DB（可能是事务句柄），并按需创建各仓储
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction 在同一个数据库事务里执行 fn，fn 返回错误则整体回滚
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Products() *ProductRepository {
	return NewProductRepository(s.db)
}

func (s *Store) Orders() *OrderRepository {
	return NewOrderRepository(s.db)
}

func (s *Store) Links() *AffiliateLinkRepository {
	return NewAffiliateLinkRepository(s.db)
}

func (s *Store) Profiles() *ProfileRepository {
	return NewProfileRepository(s.db)
}

func (s *Store) Transactions() *TransactionRepository {
	return NewTransactionRepository(s.db)
}

func (s *Store) Withdrawals() *WithdrawalRepository {
	return NewWithdrawalRepository(s.db)
}

func (s *Store) Outbox() *OutboxRepository {
	return NewOutboxRepository(s.db)
}
