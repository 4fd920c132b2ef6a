package model

import (
	"time"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// 结算状态：订单落库后，佣金/流水/计数器的下游写入进度
const (
	SettlementStatusPending = "pending"
	SettlementStatusSettled = "settled"
	SettlementStatusPartial = "partial"
)

// SettlementStep 结算状态机的各个阶段
//
//	Drafted -> OrderPersisted -> ItemsPersisted -> AffiliateCredited(可选) -> VendorsCredited -> Settled
type SettlementStep string

const (
	StepDrafted           SettlementStep = "drafted"
	StepOrderPersisted    SettlementStep = "order_persisted"
	StepItemsPersisted    SettlementStep = "items_persisted"
	StepAffiliateCredited SettlementStep = "affiliate_credited"
	StepVendorsCredited   SettlementStep = "vendors_credited"
	StepProductSales      SettlementStep = "product_sales"
	StepSettled           SettlementStep = "settled"
)

// Order 订单表
// 订单与订单项在同一事务中写入，写入后 TotalAmount 不可再修改
type Order struct {
	ID               int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo          string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	CustomerName     string      `gorm:"type:varchar(128);not null" json:"customer_name"`
	CustomerEmail    string      `gorm:"type:varchar(255);not null" json:"customer_email"`
	TotalAmount      int64       `gorm:"not null" json:"total_amount"` // 顾客实付金额（最小货币单位）
	Status           string      `gorm:"type:varchar(20);index;not null" json:"status"`
	AffiliateLinkID  *int64      `gorm:"index" json:"affiliate_link_id,omitempty"` // 下单时生效的推广链接
	SettlementStatus string      `gorm:"type:varchar(20);index;not null;default:pending" json:"settlement_status"`
	SettlementError  string      `gorm:"type:varchar(64)" json:"settlement_error,omitempty"` // 失败的结算阶段
	Items            []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt        time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// TotalCommission 订单内所有订单项佣金之和
func (o *Order) TotalCommission() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.CommissionAmount
	}
	return sum
}

// OrderItem 订单项，创建后不再修改
type OrderItem struct {
	ID               int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID          int64  `gorm:"index;not null" json:"order_id"`
	ProductID        int64  `gorm:"index;not null" json:"product_id"`
	VendorID         int64  `gorm:"index;not null" json:"vendor_id"`
	Title            string `gorm:"type:varchar(255);not null" json:"title"`
	Quantity         int64  `gorm:"not null" json:"quantity"`
	UnitPrice        int64  `gorm:"not null" json:"unit_price"`        // 下单时的单价快照
	CommissionAmount int64  `gorm:"not null" json:"commission_amount"` // 每件佣金 * 数量
}

func (OrderItem) TableName() string {
	return "order_items"
}

// Subtotal 单价 * 数量
func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * i.Quantity
}

// VendorNet 商家实得 = 小计 - 佣金
func (i OrderItem) VendorNet() int64 {
	return i.Subtotal() - i.CommissionAmount
}
