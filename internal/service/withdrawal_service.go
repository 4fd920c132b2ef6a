package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketplace/internal/infrastructure/metrics"
	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/idgen"
)

// WithdrawalRequest 提现申请参数
type WithdrawalRequest struct {
	Amount         int64  `json:"amount"`
	PaymentMethod  string `json:"payment_method"`
	PaymentDetails string `json:"payment_details"`
}

// WithdrawalService 提现：申请不扣款，审批通过时扣款并写流水
//
// 【并发控制】
// 1. Redis 分布式锁：同一用户的审批串行执行
// 2. SELECT ... FOR UPDATE：事务内重新读取余额
// 3. 乐观状态更新：WHERE status = 'pending'，防止同一申请被审批两次
// 4. 条件扣款：WHERE wallet_balance >= ?，兜底防止扣成负数
type WithdrawalService struct {
	uow     UnitOfWork
	locker  UserLocker
	topic   string
	metrics *metrics.Metrics
	logger  *slog.Logger
	nowFn   func() time.Time
}

func NewWithdrawalService(uow UnitOfWork, locker UserLocker, topic string, m *metrics.Metrics) *WithdrawalService {
	return &WithdrawalService{
		uow:     uow,
		locker:  locker,
		topic:   topic,
		metrics: m,
		logger:  slog.Default().With("component", "withdrawal"),
		nowFn:   time.Now,
	}
}

// Request 创建一条待审核的提现申请，余额此时不变
func (s *WithdrawalService) Request(ctx context.Context, actor Actor, req WithdrawalRequest) (*model.Withdrawal, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	details := strings.TrimSpace(req.PaymentDetails)
	if !model.IsPaymentMethod(method) {
		return nil, fmt.Errorf("%w: 不支持的收款方式 %q", ErrInvalidInput, req.PaymentMethod)
	}
	if details == "" {
		return nil, fmt.Errorf("%w: 收款信息不能为空", ErrInvalidInput)
	}

	repos := s.uow.Repositories()
	profile, err := repos.Wallets.GetOrCreate(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("查询钱包失败: %w", err)
	}
	if req.Amount > profile.WalletBalance {
		return nil, ErrInsufficientFunds
	}

	w := &model.Withdrawal{
		WithdrawalNo:   idgen.GenerateWithdrawalNo(),
		UserID:         actor.UserID,
		Amount:         req.Amount,
		PaymentMethod:  method,
		PaymentDetails: details,
		Status:         model.WithdrawalStatusPending,
	}
	if err := repos.Withdrawals.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("创建提现申请失败: %w", err)
	}

	s.metrics.IncWithdrawal(model.WithdrawalStatusPending)
	s.logger.InfoContext(ctx, "提现申请已提交",
		"withdrawal_no", w.WithdrawalNo, "user_id", w.UserID, "amount", w.Amount)
	return w, nil
}

// Approve 管理员审批通过：扣款、写流水、写事件，在同一个事务里完成
func (s *WithdrawalService) Approve(ctx context.Context, actor Actor, withdrawalNo, note string) (*model.Withdrawal, error) {
	if err := actor.require(model.RoleAdmin); err != nil {
		return nil, err
	}

	w, err := s.load(ctx, withdrawalNo)
	if err != nil {
		return nil, err
	}
	if w.Status != model.WithdrawalStatusPending {
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrInvalidStatus, w.Status)
	}

	unlock, err := s.locker.LockUser(ctx, w.UserID, withdrawalNo)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlock()

	var balanceAfter int64
	err = s.uow.Transaction(ctx, func(r Repositories) error {
		profile, err := r.Wallets.GetByIDForUpdate(ctx, w.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInsufficientFunds
			}
			return fmt.Errorf("查询钱包失败: %w", err)
		}
		// 申请之后余额可能被其他审批扣减过，这里重新校验
		if profile.WalletBalance < w.Amount {
			return ErrInsufficientFunds
		}

		if err := r.Withdrawals.UpdateStatus(ctx, w.WithdrawalNo,
			model.WithdrawalStatusPending, model.WithdrawalStatusApproved, actor.UserID, note); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return ErrInvalidStatus
			}
			return fmt.Errorf("更新提现状态失败: %w", err)
		}

		balanceAfter, err = r.Wallets.Debit(ctx, w.UserID, w.Amount)
		if err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return ErrInsufficientFunds
			}
			return fmt.Errorf("扣款失败: %w", err)
		}

		trans := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        w.UserID,
			Type:          model.TransactionTypeWithdrawal,
			Amount:        w.Amount,
			BalanceBefore: balanceAfter + w.Amount,
			BalanceAfter:  balanceAfter,
			Description:   fmt.Sprintf("提现-%s", w.PaymentMethod),
			ReferenceID:   w.WithdrawalNo,
		}
		if err := r.Ledger.Create(ctx, trans); err != nil {
			return fmt.Errorf("记录提现流水失败: %w", err)
		}

		return s.writeEvent(ctx, r, w, model.EventWithdrawalApproved, map[string]interface{}{
			"balance_after": balanceAfter,
		})
	})
	if err != nil {
		s.logger.WarnContext(ctx, "提现审批失败", "withdrawal_no", withdrawalNo, "err", err)
		return nil, err
	}

	s.markReviewed(w, model.WithdrawalStatusApproved, actor.UserID, note)
	s.metrics.IncWithdrawal(model.WithdrawalStatusApproved)
	s.logger.InfoContext(ctx, "提现审批通过",
		"withdrawal_no", w.WithdrawalNo, "user_id", w.UserID, "amount", w.Amount, "balance_after", balanceAfter)
	return w, nil
}

// Reject 管理员驳回，余额不变
func (s *WithdrawalService) Reject(ctx context.Context, actor Actor, withdrawalNo, note string) (*model.Withdrawal, error) {
	if err := actor.require(model.RoleAdmin); err != nil {
		return nil, err
	}

	w, err := s.load(ctx, withdrawalNo)
	if err != nil {
		return nil, err
	}

	err = s.uow.Transaction(ctx, func(r Repositories) error {
		if err := r.Withdrawals.UpdateStatus(ctx, w.WithdrawalNo,
			model.WithdrawalStatusPending, model.WithdrawalStatusRejected, actor.UserID, note); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return ErrInvalidStatus
			}
			return fmt.Errorf("更新提现状态失败: %w", err)
		}
		return s.writeEvent(ctx, r, w, model.EventWithdrawalRejected, map[string]interface{}{
			"note": note,
		})
	})
	if err != nil {
		return nil, err
	}

	s.markReviewed(w, model.WithdrawalStatusRejected, actor.UserID, note)
	s.metrics.IncWithdrawal(model.WithdrawalStatusRejected)
	s.logger.InfoContext(ctx, "提现申请已驳回", "withdrawal_no", w.WithdrawalNo, "user_id", w.UserID)
	return w, nil
}

func (s *WithdrawalService) List(ctx context.Context, actor Actor) ([]*model.Withdrawal, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}
	return s.uow.Repositories().Withdrawals.ListByUserID(ctx, actor.UserID)
}

func (s *WithdrawalService) load(ctx context.Context, withdrawalNo string) (*model.Withdrawal, error) {
	w, err := s.uow.Repositories().Withdrawals.GetByWithdrawalNo(ctx, withdrawalNo)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询提现申请失败: %w", err)
	}
	return w, nil
}

func (s *WithdrawalService) markReviewed(w *model.Withdrawal, status string, reviewerID int64, note string) {
	now := s.nowFn()
	w.Status = status
	w.ReviewedBy = &reviewerID
	w.ReviewNote = note
	w.ReviewedAt = &now
}

func (s *WithdrawalService) writeEvent(ctx context.Context, r Repositories, w *model.Withdrawal, event string, extra map[string]interface{}) error {
	payload := map[string]interface{}{
		"withdrawal_no":  w.WithdrawalNo,
		"user_id":        w.UserID,
		"amount":         w.Amount,
		"payment_method": w.PaymentMethod,
	}
	for k, v := range extra {
		payload[k] = v
	}
	msg, err := newOutboxMessage(s.topic, w.WithdrawalNo, event, payload, s.nowFn())
	if err != nil {
		return err
	}
	if err := r.Outbox.Create(ctx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
