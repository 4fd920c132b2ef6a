package service

import (
	"context"
	"errors"
	"log/slog"
)

// CheckoutResult 顾客看到的下单结果；Partial 为 true 时订单已创建，结算由后台补偿
type CheckoutResult struct {
	*SettledOrder
	Partial bool `json:"partial"`
}

// CheckoutService 购物车 -> 订单草稿 -> 推广归因 -> 结算
type CheckoutService struct {
	carts       *CartService
	assembler   *OrderAssembler
	attribution *AttributionService
	settlement  *SettlementService
	logger      *slog.Logger
}

func NewCheckoutService(carts *CartService, assembler *OrderAssembler, attribution *AttributionService, settlement *SettlementService) *CheckoutService {
	return &CheckoutService{
		carts:       carts,
		assembler:   assembler,
		attribution: attribution,
		settlement:  settlement,
		logger:      slog.Default().With("component", "checkout"),
	}
}

// Checkout 下单
// referralCode 为空时使用购物车上记录的推广码；推广码无效时按直接销售处理，不影响下单
func (s *CheckoutService) Checkout(ctx context.Context, cartID string, customer Customer, referralCode string) (*CheckoutResult, error) {
	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	draft, err := s.assembler.Assemble(cart.Lines, customer)
	if err != nil {
		return nil, err
	}

	if referralCode == "" {
		referralCode = cart.ReferralCode
	}
	linkID := s.resolveLink(ctx, draft.OrderNo, referralCode)

	settled, err := s.settlement.Settle(ctx, draft, linkID)
	partial := errors.Is(err, ErrPartialSettlement)
	if err != nil && !partial {
		return nil, err
	}

	// 订单已落库，无论结算是否完整都清空购物车，避免重复下单
	if clearErr := s.carts.Clear(ctx, cart.ID); clearErr != nil {
		s.logger.WarnContext(ctx, "清空购物车失败", "cart_id", cart.ID, "err", clearErr)
	}

	return &CheckoutResult{SettledOrder: settled, Partial: partial}, nil
}

func (s *CheckoutService) resolveLink(ctx context.Context, orderNo, code string) *int64 {
	if code == "" {
		return nil
	}
	link, err := s.attribution.Resolve(ctx, code)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "解析推广码失败，按直接销售处理", "order_no", orderNo, "code", code, "err", err)
		}
		return nil
	}
	id := link.ID
	return &id
}

