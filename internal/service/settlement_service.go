package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"marketplace/internal/infrastructure/metrics"
	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/idgen"
)

// VendorCredit 单个商家在一笔订单中的实得
type VendorCredit struct {
	VendorID     int64 `json:"vendor_id"`
	Amount       int64 `json:"amount"`
	BalanceAfter int64 `json:"balance_after"`
}

// SettledOrder 结算结果
type SettledOrder struct {
	Order               *model.Order   `json:"order"`
	AffiliateID         int64          `json:"affiliate_id,omitempty"`
	AffiliateCommission int64          `json:"affiliate_commission"`
	PlatformShare       int64          `json:"platform_share"`
	VendorCredits       []VendorCredit `json:"vendor_credits"`
}

// SettlementService 结算引擎
//
// 【事务边界】
//
//	事务A：订单 + 订单项。提交即下单成功，之后订单不会被撤回
//	事务B：结算状态推进 + 推广佣金 + 商家收入 + 商品销量 + outbox 消息，要么全部成功要么全部回滚
//
// 事务B失败时订单标记为 partial 并返回 PartialSettlementError，由对账任务调用 Reconcile 补偿。
// 事务B的第一步是 settlement_status 的条件更新，保证佣金最多入账一次
type SettlementService struct {
	uow     UnitOfWork
	topic   string
	metrics *metrics.Metrics
	logger  *slog.Logger
	nowFn   func() time.Time
}

func NewSettlementService(uow UnitOfWork, topic string, m *metrics.Metrics) *SettlementService {
	return &SettlementService{
		uow:     uow,
		topic:   topic,
		metrics: m,
		logger:  slog.Default().With("component", "settlement"),
		nowFn:   time.Now,
	}
}

// Settle 结算一个订单草稿，每个草稿只能结算一次
func (s *SettlementService) Settle(ctx context.Context, draft *OrderDraft, affiliateLinkID *int64) (*SettledOrder, error) {
	start := s.nowFn()
	if draft == nil || draft.OrderNo == "" || len(draft.Items) == 0 {
		return nil, ErrInvalidInput
	}

	linkID := s.attributableLink(ctx, affiliateLinkID)

	order := &model.Order{
		OrderNo:          draft.OrderNo,
		CustomerName:     draft.Customer.Name,
		CustomerEmail:    draft.Customer.Email,
		TotalAmount:      draft.TotalAmount,
		Status:           model.OrderStatusCompleted,
		AffiliateLinkID:  linkID,
		SettlementStatus: model.SettlementStatusPending,
		Items:            append([]model.OrderItem(nil), draft.Items...),
	}

	// 事务A：订单落库
	err := s.uow.Transaction(ctx, func(r Repositories) error {
		exists, err := r.Orders.ExistsByOrderNo(ctx, order.OrderNo)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadySettled
		}
		if err := r.Orders.CreateWithItems(ctx, order); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadySettled
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			s.metrics.ObserveSettlement(metrics.ResultDuplicate, s.since(start))
			s.logger.WarnContext(ctx, "重复结算请求已拒绝", "order_no", order.OrderNo)
			return nil, ErrAlreadySettled
		}
		s.metrics.ObserveSettlement(metrics.ResultFailed, s.since(start))
		s.logger.ErrorContext(ctx, "订单落库失败", "order_no", order.OrderNo, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	result, err := s.settleDownstream(ctx, order)
	if err != nil {
		var partial *PartialSettlementError
		if errors.As(err, &partial) {
			s.metrics.ObserveSettlement(metrics.ResultPartial, s.since(start))
			return &SettledOrder{Order: order}, err
		}
		if errors.Is(err, ErrAlreadySettled) {
			// 对账任务抢先完成了这笔订单的结算
			order.SettlementStatus = model.SettlementStatusSettled
			s.metrics.ObserveSettlement(metrics.ResultSettled, s.since(start))
			return &SettledOrder{Order: order}, nil
		}
		return &SettledOrder{Order: order}, err
	}

	s.metrics.ObserveSettlement(metrics.ResultSettled, s.since(start))
	s.logger.InfoContext(ctx, "订单结算完成",
		"order_no", order.OrderNo,
		"total_amount", order.TotalAmount,
		"affiliate_commission", result.AffiliateCommission,
		"vendors", len(result.VendorCredits))
	return result, nil
}

// Reconcile 对 partial 状态的订单重新执行事务B
func (s *SettlementService) Reconcile(ctx context.Context, orderNo string) (*SettledOrder, error) {
	order, err := s.uow.Repositories().Orders.GetByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if order.SettlementStatus == model.SettlementStatusSettled {
		return nil, ErrAlreadySettled
	}

	result, err := s.settleDownstream(ctx, order)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "订单补偿结算完成", "order_no", order.OrderNo)
	return result, nil
}

// PendingReconciliation before 之前创建但结算未完成的订单
func (s *SettlementService) PendingReconciliation(ctx context.Context, before time.Time, limit int) ([]*model.Order, error) {
	return s.uow.Repositories().Orders.ListUnsettled(ctx, before, limit)
}

// attributableLink 下单前再确认一次推广链接可用，不可用按无推广处理
func (s *SettlementService) attributableLink(ctx context.Context, affiliateLinkID *int64) *int64 {
	if affiliateLinkID == nil {
		return nil
	}
	link, err := s.uow.Repositories().Links.GetByID(ctx, *affiliateLinkID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.WarnContext(ctx, "查询推广链接失败，按无推广处理", "link_id", *affiliateLinkID, "err", err)
		}
		return nil
	}
	if !link.Usable(s.nowFn()) {
		return nil
	}
	id := link.ID
	return &id
}

// settleDownstream 事务B：佣金、商家收入、销量、事件
func (s *SettlementService) settleDownstream(ctx context.Context, order *model.Order) (*SettledOrder, error) {
	result := &SettledOrder{Order: order}
	step := model.StepItemsPersisted

	err := s.uow.Transaction(ctx, func(r Repositories) error {
		err := r.Orders.TransitionSettlement(ctx, order.OrderNo,
			[]string{model.SettlementStatusPending, model.SettlementStatusPartial},
			model.SettlementStatusSettled, "")
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return ErrAlreadySettled
			}
			return err
		}

		totalCommission := order.TotalCommission()
		result.PlatformShare = totalCommission

		if order.AffiliateLinkID != nil {
			step = model.StepAffiliateCredited
			affiliateID, err := s.creditAffiliate(ctx, r, order, *order.AffiliateLinkID, totalCommission)
			if err != nil {
				return err
			}
			result.AffiliateID = affiliateID
			result.AffiliateCommission = totalCommission
			result.PlatformShare = 0
		}

		step = model.StepVendorsCredited
		credits, err := s.creditVendors(ctx, r, order)
		if err != nil {
			return err
		}
		result.VendorCredits = credits

		step = model.StepProductSales
		if err := s.incrementSales(ctx, r, order); err != nil {
			return err
		}

		step = model.StepSettled
		return s.writeSettledEvent(ctx, r, result)
	})

	if err == nil {
		order.SettlementStatus = model.SettlementStatusSettled
		order.SettlementError = ""
		s.metrics.AddCommission(result.AffiliateCommission)
		for _, c := range result.VendorCredits {
			s.metrics.AddVendorNet(c.Amount)
		}
		return result, nil
	}
	if errors.Is(err, ErrAlreadySettled) {
		return nil, err
	}

	s.markPartial(ctx, order, step, err)
	return nil, &PartialSettlementError{OrderNo: order.OrderNo, Step: step, Err: err}
}

func (s *SettlementService) creditAffiliate(ctx context.Context, r Repositories, order *model.Order, linkID int64, amount int64) (int64, error) {
	link, err := r.Links.GetByID(ctx, linkID)
	if err != nil {
		return 0, fmt.Errorf("查询推广链接失败: %w", err)
	}

	if err := r.Links.RecordConversion(ctx, link.ID, amount); err != nil {
		return 0, fmt.Errorf("更新推广链接统计失败: %w", err)
	}

	if amount <= 0 {
		return link.AffiliateID, nil
	}

	balanceAfter, err := r.Wallets.Credit(ctx, link.AffiliateID, amount)
	if err != nil {
		return 0, fmt.Errorf("推广佣金入账失败: %w", err)
	}

	trans := &model.Transaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        link.AffiliateID,
		Type:          model.TransactionTypeCommission,
		Amount:        amount,
		BalanceBefore: balanceAfter - amount,
		BalanceAfter:  balanceAfter,
		Description:   fmt.Sprintf("推广佣金-订单%s", order.OrderNo),
		ReferenceID:   order.OrderNo,
	}
	if err := r.Ledger.Create(ctx, trans); err != nil {
		return 0, fmt.Errorf("记录佣金流水失败: %w", err)
	}
	return link.AffiliateID, nil
}

// creditVendors 按商家汇总实得，按商家ID升序入账，固定加锁顺序避免死锁
func (s *SettlementService) creditVendors(ctx context.Context, r Repositories, order *model.Order) ([]VendorCredit, error) {
	nets := make(map[int64]int64)
	units := make(map[int64]int64)
	for _, item := range order.Items {
		nets[item.VendorID] += item.VendorNet()
		units[item.VendorID] += item.Quantity
	}

	vendorIDs := make([]int64, 0, len(nets))
	for id := range nets {
		vendorIDs = append(vendorIDs, id)
	}
	sort.Slice(vendorIDs, func(i, j int) bool { return vendorIDs[i] < vendorIDs[j] })

	credits := make([]VendorCredit, 0, len(vendorIDs))
	for _, vendorID := range vendorIDs {
		amount := nets[vendorID]
		if amount <= 0 {
			continue
		}

		balanceAfter, err := r.Wallets.Credit(ctx, vendorID, amount)
		if err != nil {
			return nil, fmt.Errorf("商家收入入账失败: vendor_id=%d: %w", vendorID, err)
		}

		trans := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        vendorID,
			Type:          model.TransactionTypeSale,
			Amount:        amount,
			BalanceBefore: balanceAfter - amount,
			BalanceAfter:  balanceAfter,
			Description:   fmt.Sprintf("销售收入-订单%s-%d件", order.OrderNo, units[vendorID]),
			ReferenceID:   order.OrderNo,
		}
		if err := r.Ledger.Create(ctx, trans); err != nil {
			return nil, fmt.Errorf("记录销售流水失败: vendor_id=%d: %w", vendorID, err)
		}

		credits = append(credits, VendorCredit{VendorID: vendorID, Amount: amount, BalanceAfter: balanceAfter})
	}
	return credits, nil
}

func (s *SettlementService) incrementSales(ctx context.Context, r Repositories, order *model.Order) error {
	quantities := make(map[int64]int64)
	productIDs := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		if _, ok := quantities[item.ProductID]; !ok {
			productIDs = append(productIDs, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	for _, id := range productIDs {
		if err := r.Products.IncrementSales(ctx, id, quantities[id]); err != nil {
			return fmt.Errorf("更新商品销量失败: product_id=%d: %w", id, err)
		}
	}
	return nil
}

func (s *SettlementService) writeSettledEvent(ctx context.Context, r Repositories, result *SettledOrder) error {
	order := result.Order
	payload := map[string]interface{}{
		"order_no":             order.OrderNo,
		"total_amount":         order.TotalAmount,
		"affiliate_id":         result.AffiliateID,
		"affiliate_commission": result.AffiliateCommission,
		"platform_share":       result.PlatformShare,
		"vendor_credits":       result.VendorCredits,
	}
	msg, err := newOutboxMessage(s.topic, order.OrderNo, model.EventOrderSettled, payload, s.nowFn())
	if err != nil {
		return err
	}
	if err := r.Outbox.Create(ctx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// markPartial 事务B已回滚，把订单标记为待对账；这里失败只记日志，订单仍停留在 pending，对账任务同样会处理
func (s *SettlementService) markPartial(ctx context.Context, order *model.Order, step model.SettlementStep, cause error) {
	order.SettlementStatus = model.SettlementStatusPartial
	order.SettlementError = string(step)

	err := s.uow.Repositories().Orders.TransitionSettlement(ctx, order.OrderNo,
		[]string{model.SettlementStatusPending, model.SettlementStatusPartial},
		model.SettlementStatusPartial, string(step))
	if err != nil && !errors.Is(err, repository.ErrStatusConflict) {
		s.logger.ErrorContext(ctx, "标记部分结算失败", "order_no", order.OrderNo, "step", step, "err", err)
	}
	s.logger.ErrorContext(ctx, "订单部分结算，等待对账", "order_no", order.OrderNo, "step", step, "err", cause)
}

func (s *SettlementService) since(start time.Time) float64 {
	return s.nowFn().Sub(start).Seconds()
}
