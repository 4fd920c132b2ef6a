package repository

import (
	"context"
	"time"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, w *model.Withdrawal) error {
	return translate(r.db.WithContext(ctx).Create(w).Error)
}

func (r *WithdrawalRepository) GetByWithdrawalNo(ctx context.Context, withdrawalNo string) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := r.db.WithContext(ctx).Where("withdrawal_no = ?", withdrawalNo).First(&w).Error
	if err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (r *WithdrawalRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.Withdrawal, error) {
	var list []*model.Withdrawal
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

// UpdateStatus 审核状态的条件更新
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, withdrawalNo string, fromStatus, toStatus string, reviewerID int64, note string) error {
	if !model.CanWithdrawalTransitionTo(fromStatus, toStatus) {
		return ErrStatusConflict
	}

	result := r.db.WithContext(ctx).
		Model(&model.Withdrawal{}).
		Where("withdrawal_no = ? AND status = ?", withdrawalNo, fromStatus).
		Updates(map[string]interface{}{
			"status":      toStatus,
			"reviewed_by": reviewerID,
			"review_note": note,
			"reviewed_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}
