package repository

import (
	"context"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, product *model.Product) error {
	return translate(r.db.WithContext(ctx).Create(product).Error)
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (r *ProductRepository) ListByStatus(ctx context.Context, status string) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&products).Error
	return products, err
}

// UpdateStatus 带前置状态的条件更新，避免并发审核互相覆盖
func (r *ProductRepository) UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) error {
	if !model.CanProductTransitionTo(fromStatus, toStatus) {
		return ErrStatusConflict
	}

	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// IncrementSales 原子累加销量
func (r *ProductRepository) IncrementSales(ctx context.Context, id int64, quantity int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		UpdateColumn("sales", gorm.Expr("sales + ?", quantity))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
