package repository

import (
	"context"
	"time"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateWithItems 写入订单及其订单项
// 调用方负责把它放进事务，订单号重复时返回 ErrDuplicate
func (r *OrderRepository) CreateWithItems(ctx context.Context, order *model.Order) error {
	items := order.Items

	if err := r.db.WithContext(ctx).Omit("Items").Create(order).Error; err != nil {
		return translate(err)
	}

	for i := range items {
		items[i].OrderID = order.ID
	}
	if len(items) > 0 {
		if err := r.db.WithContext(ctx).Create(&items).Error; err != nil {
			return translate(err)
		}
	}
	order.Items = items
	return nil
}

func (r *OrderRepository) ExistsByOrderNo(ctx context.Context, orderNo string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ?", orderNo).
		Count(&count).Error
	return count > 0, err
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// TransitionSettlement 结算状态的条件更新（from 中任意一个 -> to）
// 影响行数为 0 说明已被其他请求推进，返回 ErrStatusConflict
func (r *OrderRepository) TransitionSettlement(ctx context.Context, orderNo string, from []string, to string, failedStep string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ? AND settlement_status IN ?", orderNo, from).
		Updates(map[string]interface{}{
			"settlement_status": to,
			"settlement_error":  failedStep,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ListUnsettled 查询 before 之前创建、结算未完成（pending/partial）的订单，供对账任务补偿
func (r *OrderRepository) ListUnsettled(ctx context.Context, before time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("settlement_status IN ? AND created_at < ?",
			[]string{model.SettlementStatusPending, model.SettlementStatusPartial}, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
