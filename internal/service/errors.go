package service

import (
	"errors"
	"fmt"

	"marketplace/internal/model"
)

// 校验类错误：调用方的问题，直接提示用户修改，不重试
var (
	ErrInvalidInput      = errors.New("参数不合法")
	ErrEmptyCart         = errors.New("购物车为空")
	ErrInvalidCustomer   = errors.New("顾客信息不完整")
	ErrInvalidAmount     = errors.New("金额不合法")
	ErrInsufficientFunds = errors.New("余额不足")
)

var (
	// ErrNotFound 推广码未命中时是正常分支，不是失败
	ErrNotFound      = errors.New("记录不存在")
	ErrUnauthorized  = errors.New("未登录")
	ErrForbidden     = errors.New("无权操作")
	ErrInvalidStatus = errors.New("当前状态不允许该操作")
)

var (
	// ErrSettlementFailed 订单本身未能落库，没有任何数据写入，可以整体重试
	ErrSettlementFailed = errors.New("下单失败，请重试")
	// ErrPartialSettlement 订单已落库，但佣金/流水/计数器未完成，不能重新下单，只能对账补偿
	ErrPartialSettlement = errors.New("订单已创建，结算未完成")
	// ErrAlreadySettled 同一个订单草稿只能结算一次
	ErrAlreadySettled = errors.New("订单已结算，请勿重复提交")
)

// PartialSettlementError 记录失败的订单号和结算阶段，便于后续对账
type PartialSettlementError struct {
	OrderNo string
	Step    model.SettlementStep
	Err     error
}

func (e *PartialSettlementError) Error() string {
	return fmt.Sprintf("%s: order_no=%s, step=%s: %v", ErrPartialSettlement.Error(), e.OrderNo, e.Step, e.Err)
}

func (e *PartialSettlementError) Unwrap() error {
	return e.Err
}

func (e *PartialSettlementError) Is(target error) bool {
	return target == ErrPartialSettlement
}
