package service

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"marketplace/internal/commission"
	"marketplace/internal/model"
	"marketplace/pkg/idgen"

	"github.com/go-playground/validator/v10"
)

// Customer 下单顾客信息
type Customer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

// OrderDraft 组装好但尚未落库的订单
type OrderDraft struct {
	OrderNo         string
	Customer        Customer
	Items           []model.OrderItem
	TotalAmount     int64
	TotalCommission int64
}

// OrderAssembler 根据购物车快照构造订单草稿
type OrderAssembler struct {
	validate *validator.Validate
	newNo    func() string
}

func NewOrderAssembler() *OrderAssembler {
	return &OrderAssembler{
		validate: validator.New(),
		newNo:    idgen.GenerateOrderNo,
	}
}

// Assemble 校验购物车与顾客信息并计算每行佣金
//
// TotalAmount = Σ unitPrice * quantity，与佣金计算无关，是顾客实际支付的金额
func (a *OrderAssembler) Assemble(lines []model.CartLine, customer Customer) (*OrderDraft, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	customer.Name = strings.TrimSpace(customer.Name)
	customer.Email = strings.TrimSpace(customer.Email)
	customer.Phone = strings.TrimSpace(customer.Phone)
	if err := a.validate.Struct(customer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCustomer, err)
	}

	draft := &OrderDraft{
		OrderNo:  a.newNo(),
		Customer: customer,
		Items:    make([]model.OrderItem, 0, len(lines)),
	}

	for i, line := range lines {
		split, err := commission.Calculate(line.UnitPrice, line.Quantity, line.CommissionRate)
		if err != nil {
			if errors.Is(err, commission.ErrInvalidInput) {
				return nil, fmt.Errorf("%w: 第%d行 product_id=%d", ErrInvalidInput, i+1, line.ProductID)
			}
			return nil, err
		}

		item := model.OrderItem{
			ProductID:        line.ProductID,
			VendorID:         line.VendorID,
			Title:            line.Title,
			Quantity:         line.Quantity,
			UnitPrice:        line.UnitPrice,
			CommissionAmount: split.CommissionTotal(),
		}
		subtotal := item.Subtotal()
		if draft.TotalAmount > math.MaxInt64-subtotal {
			return nil, fmt.Errorf("%w: 订单总额超出上限", ErrInvalidInput)
		}
		draft.Items = append(draft.Items, item)
		draft.TotalAmount += subtotal
		draft.TotalCommission += item.CommissionAmount
	}

	return draft, nil
}
