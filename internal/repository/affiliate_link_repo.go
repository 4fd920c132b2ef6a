package repository

import (
	"context"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

type AffiliateLinkRepository struct {
	db *gorm.DB
}

func NewAffiliateLinkRepository(db *gorm.DB) *AffiliateLinkRepository {
	return &AffiliateLinkRepository{db: db}
}

// Create code 或 (affiliate_id, product_id) 冲突时返回 ErrDuplicate
func (r *AffiliateLinkRepository) Create(ctx context.Context, link *model.AffiliateLink) error {
	return translate(r.db.WithContext(ctx).Create(link).Error)
}

func (r *AffiliateLinkRepository) GetByID(ctx context.Context, id int64) (*model.AffiliateLink, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *AffiliateLinkRepository) GetByCode(ctx context.Context, code string) (*model.AffiliateLink, error) {
	return r.first(ctx, "code = ?", code)
}

func (r *AffiliateLinkRepository) GetByAffiliateAndProduct(ctx context.Context, affiliateID, productID int64) (*model.AffiliateLink, error) {
	return r.first(ctx, "affiliate_id = ? AND product_id = ?", affiliateID, productID)
}

func (r *AffiliateLinkRepository) first(ctx context.Context, query string, args ...interface{}) (*model.AffiliateLink, error) {
	var link model.AffiliateLink
	if err := r.db.WithContext(ctx).Where(query, args...).First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (r *AffiliateLinkRepository) ListByAffiliateID(ctx context.Context, affiliateID int64) ([]*model.AffiliateLink, error) {
	var links []*model.AffiliateLink
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC").
		Find(&links).Error
	return links, err
}

// IncrementClicks 原子累加点击数
func (r *AffiliateLinkRepository) IncrementClicks(ctx context.Context, id int64) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"clicks": gorm.Expr("clicks + 1"),
	})
}

// RecordConversion 原子累加转化数和累计佣金
func (r *AffiliateLinkRepository) RecordConversion(ctx context.Context, id int64, commission int64) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"conversions":       gorm.Expr("conversions + 1"),
		"commission_earned": gorm.Expr("commission_earned + ?", commission),
	})
}

func (r *AffiliateLinkRepository) Deactivate(ctx context.Context, id int64) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"active": false,
	})
}

func (r *AffiliateLinkRepository) updateColumns(ctx context.Context, id int64, columns map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.AffiliateLink{}).
		Where("id = ?", id).
		UpdateColumns(columns)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
