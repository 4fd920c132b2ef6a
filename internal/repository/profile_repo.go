package repository

import (
	"context"
	"errors"

	"marketplace/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository 用户资料与钱包余额
//
// 【关键点】余额只通过 balance = balance ± ? 的原子 SQL 修改，
// 绝不在应用层读出余额、计算后再写回
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByID(ctx context.Context, userID int64) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

func (r *ProfileRepository) GetByIDForUpdate(ctx context.Context, userID int64) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&profile).Error
	if err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

// GetOrCreate 资料不存在时创建一条零余额记录（并发创建时以先到者为准）
func (r *ProfileRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Profile, error) {
	profile, err := r.GetByID(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&model.Profile{ID: userID}).Error
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, userID)
}

// Credit 入账，返回入账后的余额
func (r *ProfileRepository) Credit(ctx context.Context, userID int64, amount int64) (int64, error) {
	if _, err := r.GetOrCreate(ctx, userID); err != nil {
		return 0, err
	}

	result := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"wallet_balance": gorm.Expr("wallet_balance + ?", amount),
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	return r.balance(ctx, userID)
}

// Debit 出账，余额不足时不修改任何数据并返回 ErrBalanceNotEnough
func (r *ProfileRepository) Debit(ctx context.Context, userID int64, amount int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("id = ? AND wallet_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"wallet_balance": gorm.Expr("wallet_balance - ?", amount),
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, userID); err != nil {
			return 0, err
		}
		return 0, ErrBalanceNotEnough
	}

	return r.balance(ctx, userID)
}

func (r *ProfileRepository) balance(ctx context.Context, userID int64) (int64, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).
		Select("wallet_balance").
		Where("id = ?", userID).
		First(&profile).Error
	if err != nil {
		return 0, translate(err)
	}
	return profile.WalletBalance, nil
}
