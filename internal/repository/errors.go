package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("记录不存在")
	ErrDuplicate        = errors.New("记录已存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrStatusConflict   = errors.New("状态已变更")
)

// translate 把 gorm 错误转换成仓储层错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
