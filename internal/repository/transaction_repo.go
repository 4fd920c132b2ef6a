package repository

import (
	"context"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository 钱包流水，只追加
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, trans *model.Transaction) error {
	return translate(r.db.WithContext(ctx).Create(trans).Error)
}

func (r *TransactionRepository) ListByReferenceID(ctx context.Context, referenceID string) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// SumSignedByUserID 按类型带符号汇总流水，用于和钱包余额对账
func (r *TransactionRepository) SumSignedByUserID(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN -amount ELSE amount END), 0)", model.TransactionTypeWithdrawal).
		Where("user_id = ?", userID).
		Row().
		Scan(&sum)
	return sum, err
}
