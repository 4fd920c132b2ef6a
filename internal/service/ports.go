package service

import (
	"context"
	"encoding/json"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/repository"
)

// ============================================================================
// 存储端口：服务层只依赖这些接口，生产环境由 gorm 仓储实现
// ============================================================================

type ProductStore interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	ListByStatus(ctx context.Context, status string) ([]*model.Product, error)
	UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) error
	IncrementSales(ctx context.Context, id int64, quantity int64) error
}

type OrderStore interface {
	CreateWithItems(ctx context.Context, order *model.Order) error
	ExistsByOrderNo(ctx context.Context, orderNo string) (bool, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)
	TransitionSettlement(ctx context.Context, orderNo string, from []string, to string, failedStep string) error
	ListUnsettled(ctx context.Context, before time.Time, limit int) ([]*model.Order, error)
}

type LinkStore interface {
	Create(ctx context.Context, link *model.AffiliateLink) error
	GetByID(ctx context.Context, id int64) (*model.AffiliateLink, error)
	GetByCode(ctx context.Context, code string) (*model.AffiliateLink, error)
	GetByAffiliateAndProduct(ctx context.Context, affiliateID, productID int64) (*model.AffiliateLink, error)
	ListByAffiliateID(ctx context.Context, affiliateID int64) ([]*model.AffiliateLink, error)
	IncrementClicks(ctx context.Context, id int64) error
	RecordConversion(ctx context.Context, id int64, commission int64) error
	Deactivate(ctx context.Context, id int64) error
}

type WalletStore interface {
	GetByID(ctx context.Context, userID int64) (*model.Profile, error)
	GetByIDForUpdate(ctx context.Context, userID int64) (*model.Profile, error)
	GetOrCreate(ctx context.Context, userID int64) (*model.Profile, error)
	Credit(ctx context.Context, userID int64, amount int64) (int64, error)
	Debit(ctx context.Context, userID int64, amount int64) (int64, error)
}

type LedgerStore interface {
	Create(ctx context.Context, trans *model.Transaction) error
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error)
	ListByReferenceID(ctx context.Context, referenceID string) ([]*model.Transaction, error)
	SumSignedByUserID(ctx context.Context, userID int64) (int64, error)
}

type WithdrawalStore interface {
	Create(ctx context.Context, w *model.Withdrawal) error
	GetByWithdrawalNo(ctx context.Context, withdrawalNo string) (*model.Withdrawal, error)
	ListByUserID(ctx context.Context, userID int64) ([]*model.Withdrawal, error)
	UpdateStatus(ctx context.Context, withdrawalNo string, fromStatus, toStatus string, reviewerID int64, note string) error
}

type OutboxStore interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
}

// Repositories 一组绑定在同一个连接（或同一个事务）上的仓储
type Repositories struct {
	Products    ProductStore
	Orders      OrderStore
	Links       LinkStore
	Wallets     WalletStore
	Ledger      LedgerStore
	Withdrawals WithdrawalStore
	Outbox      OutboxStore
}

// UnitOfWork 事务边界
type UnitOfWork interface {
	Repositories() Repositories
	Transaction(ctx context.Context, fn func(r Repositories) error) error
}

type gormUnitOfWork struct {
	store *repository.Store
}

func NewUnitOfWork(store *repository.Store) UnitOfWork {
	return &gormUnitOfWork{store: store}
}

func (u *gormUnitOfWork) Repositories() Repositories {
	return repositoriesOf(u.store)
}

func (u *gormUnitOfWork) Transaction(ctx context.Context, fn func(r Repositories) error) error {
	return u.store.Transaction(ctx, func(tx *repository.Store) error {
		return fn(repositoriesOf(tx))
	})
}

func repositoriesOf(s *repository.Store) Repositories {
	return Repositories{
		Products:    s.Products(),
		Orders:      s.Orders(),
		Links:       s.Links(),
		Wallets:     s.Profiles(),
		Ledger:      s.Transactions(),
		Withdrawals: s.Withdrawals(),
		Outbox:      s.Outbox(),
	}
}

// UserLocker 按用户维度的互斥锁
type UserLocker interface {
	LockUser(ctx context.Context, userID int64, owner string) (unlock func(), err error)
}

// CartStore 购物车存储，购物车不存在时返回 repository.ErrNotFound
type CartStore interface {
	Get(ctx context.Context, cartID string) (*model.Cart, error)
	Save(ctx context.Context, cart *model.Cart) error
	Delete(ctx context.Context, cartID string) error
}

// newOutboxMessage 把事件序列化成本地消息，和业务数据在同一事务中写入
func newOutboxMessage(topic, key, event string, payload map[string]interface{}, now time.Time) (*model.OutboxMessage, error) {
	body := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["event"] = event
	body["occurred_at"] = now.UTC().Format(time.RFC3339)

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(raw),
		Status:     model.OutboxStatusPending,
	}, nil
}
