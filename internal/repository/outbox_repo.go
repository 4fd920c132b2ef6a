package repository

import (
	"context"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 重试次数 +1，达到上限后转为 FAILED，不再投递
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, maxRetry int) error {
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ? AND retry_count >= ?", id, model.OutboxStatusPending, maxRetry).
		Update("status", model.OutboxStatusFailed).Error
}
