package service

import (
	"context"
	"fmt"

	"marketplace/internal/model"
)

// WalletAudit 余额与流水的对账结果
type WalletAudit struct {
	UserID     int64 `json:"user_id"`
	Balance    int64 `json:"balance"`
	LedgerSum  int64 `json:"ledger_sum"`
	Consistent bool  `json:"consistent"`
}

// TransactionPage 分页流水
type TransactionPage struct {
	List     []*model.Transaction `json:"list"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// WalletService 钱包只读查询，余额只会被结算和提现审批修改
type WalletService struct {
	repos Repositories
}

func NewWalletService(uow UnitOfWork) *WalletService {
	return &WalletService{repos: uow.Repositories()}
}

func (s *WalletService) GetWallet(ctx context.Context, actor Actor) (*model.Profile, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}
	return s.repos.Wallets.GetOrCreate(ctx, actor.UserID)
}

func (s *WalletService) ListTransactions(ctx context.Context, actor Actor, page, pageSize int) (*TransactionPage, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	list, total, err := s.repos.Ledger.ListByUserID(ctx, actor.UserID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	return &TransactionPage{List: list, Total: total, Page: page, PageSize: pageSize}, nil
}

// Audit 校验 余额 == 流水有符号金额之和
// 管理员可以查看任意用户，其他人只能查看自己
func (s *WalletService) Audit(ctx context.Context, actor Actor, userID int64) (*WalletAudit, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	profile, err := s.repos.Wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询钱包失败: %w", err)
	}
	sum, err := s.repos.Ledger.SumSignedByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("汇总流水失败: %w", err)
	}

	return &WalletAudit{
		UserID:     userID,
		Balance:    profile.WalletBalance,
		LedgerSum:  sum,
		Consistent: profile.WalletBalance == sum,
	}, nil
}
