package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/repository"
)

// memStore 内存版的 UnitOfWork，事务用快照实现回滚，可以按操作名注入失败
type memStore struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *memState
	fails map[string]*injectedFailure
}

type injectedFailure struct {
	err       error
	remaining int // <0 表示一直失败
}

type memState struct {
	nextID      int64
	products    map[int64]model.Product
	orders      map[string]model.Order
	links       map[int64]model.AffiliateLink
	profiles    map[int64]model.Profile
	ledger      []model.Transaction
	withdrawals map[string]model.Withdrawal
	outbox      []model.OutboxMessage
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			products:    map[int64]model.Product{},
			orders:      map[string]model.Order{},
			links:       map[int64]model.AffiliateLink{},
			profiles:    map[int64]model.Profile{},
			withdrawals: map[string]model.Withdrawal{},
		},
		fails: map[string]*injectedFailure{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:      s.nextID,
		products:    make(map[int64]model.Product, len(s.products)),
		orders:      make(map[string]model.Order, len(s.orders)),
		links:       make(map[int64]model.AffiliateLink, len(s.links)),
		profiles:    make(map[int64]model.Profile, len(s.profiles)),
		ledger:      append([]model.Transaction(nil), s.ledger...),
		withdrawals: make(map[string]model.Withdrawal, len(s.withdrawals)),
		outbox:      append([]model.OutboxMessage(nil), s.outbox...),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]model.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	return c
}

// failOnce 让 op 的下一次调用返回 err
func (m *memStore) failOnce(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[op] = &injectedFailure{err: err, remaining: 1}
}

func (m *memStore) failAlways(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[op] = &injectedFailure{err: err, remaining: -1}
}

// injected 调用方必须持有 mu
func (m *memStore) injected(op string) error {
	f, ok := m.fails[op]
	if !ok || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

func (m *memStore) id() int64 {
	m.state.nextID++
	return m.state.nextID
}

func (m *memStore) Repositories() Repositories {
	return Repositories{
		Products:    memProducts{m},
		Orders:      memOrders{m},
		Links:       memLinks{m},
		Wallets:     memWallets{m},
		Ledger:      memLedger{m},
		Withdrawals: memWithdrawals{m},
		Outbox:      memOutbox{m},
	}
}

func (m *memStore) Transaction(ctx context.Context, fn func(r Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(m.Repositories()); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// ---- 测试辅助 ----

func (m *memStore) seedProduct(p model.Product) model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	if p.Status == "" {
		p.Status = model.ProductStatusApproved
	}
	m.state.products[p.ID] = p
	return p
}

func (m *memStore) seedLink(l model.AffiliateLink) model.AffiliateLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == 0 {
		l.ID = m.id()
	}
	m.state.links[l.ID] = l
	return l
}

// seedBalance 直接设置余额并补一条入账流水，保持余额与流水一致
func (m *memStore) seedBalance(userID, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.state.profiles[userID]
	p.ID = userID
	before := p.WalletBalance
	p.WalletBalance += amount
	m.state.profiles[userID] = p
	id := m.id()
	m.state.ledger = append(m.state.ledger, model.Transaction{
		ID:            id,
		TransactionNo: "SEED" + strconv.FormatInt(id, 10),
		UserID:        userID,
		Type:          model.TransactionTypeSale,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  p.WalletBalance,
	})
}

func (m *memStore) balance(userID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.profiles[userID].WalletBalance
}

func (m *memStore) ledgerFor(userID int64) []model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for _, t := range m.state.ledger {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (m *memStore) ledgerSum(userID int64) int64 {
	var sum int64
	for _, t := range m.ledgerFor(userID) {
		sum += t.SignedAmount()
	}
	return sum
}

func (m *memStore) order(orderNo string) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[orderNo]
	return o, ok
}

func (m *memStore) link(id int64) model.AffiliateLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.links[id]
}

func (m *memStore) product(id int64) model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.products[id]
}

func (m *memStore) withdrawalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.withdrawals)
}

func (m *memStore) outboxMessages() []model.OutboxMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.OutboxMessage(nil), m.state.outbox...)
}

// ---- 仓储实现 ----

type memProducts struct{ m *memStore }

func (r memProducts) Create(ctx context.Context, p *model.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("products.create"); err != nil {
		return err
	}
	p.ID = r.m.id()
	p.CreatedAt = time.Now()
	r.m.state.products[p.ID] = *p
	return nil
}

func (r memProducts) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.state.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memProducts) ListByStatus(ctx context.Context, status string) ([]*model.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []*model.Product
	for _, p := range r.m.state.products {
		if p.Status == status {
			p := p
			list = append(list, &p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r memProducts) UpdateStatus(ctx context.Context, id int64, from, to string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.state.products[id]
	if !ok || p.Status != from || !model.CanProductTransitionTo(from, to) {
		return repository.ErrStatusConflict
	}
	p.Status = to
	r.m.state.products[id] = p
	return nil
}

func (r memProducts) IncrementSales(ctx context.Context, id int64, quantity int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("products.increment_sales"); err != nil {
		return err
	}
	p, ok := r.m.state.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Sales += quantity
	r.m.state.products[id] = p
	return nil
}

type memOrders struct{ m *memStore }

func (r memOrders) CreateWithItems(ctx context.Context, o *model.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("orders.create"); err != nil {
		return err
	}
	if _, ok := r.m.state.orders[o.OrderNo]; ok {
		return repository.ErrDuplicate
	}
	o.ID = r.m.id()
	o.CreatedAt = time.Now()
	for i := range o.Items {
		o.Items[i].ID = r.m.id()
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = append([]model.OrderItem(nil), o.Items...)
	r.m.state.orders[o.OrderNo] = stored
	return nil
}

func (r memOrders) ExistsByOrderNo(ctx context.Context, orderNo string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, ok := r.m.state.orders[orderNo]
	return ok, nil
}

func (r memOrders) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.state.orders[orderNo]
	if !ok {
		return nil, repository.ErrNotFound
	}
	o.Items = append([]model.OrderItem(nil), o.Items...)
	return &o, nil
}

func (r memOrders) TransitionSettlement(ctx context.Context, orderNo string, from []string, to string, failedStep string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.state.orders[orderNo]
	if !ok {
		return repository.ErrStatusConflict
	}
	allowed := false
	for _, f := range from {
		if o.SettlementStatus == f {
			allowed = true
		}
	}
	if !allowed {
		return repository.ErrStatusConflict
	}
	o.SettlementStatus = to
	o.SettlementError = failedStep
	r.m.state.orders[orderNo] = o
	return nil
}

func (r memOrders) ListUnsettled(ctx context.Context, before time.Time, limit int) ([]*model.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []*model.Order
	for _, o := range r.m.state.orders {
		unsettled := o.SettlementStatus == model.SettlementStatusPending || o.SettlementStatus == model.SettlementStatusPartial
		if unsettled && o.CreatedAt.Before(before) {
			o := o
			o.Items = append([]model.OrderItem(nil), o.Items...)
			list = append(list, &o)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

type memLinks struct{ m *memStore }

func (r memLinks) Create(ctx context.Context, l *model.AffiliateLink) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.state.links {
		if existing.Code == l.Code {
			return repository.ErrDuplicate
		}
		if existing.AffiliateID == l.AffiliateID && existing.ProductID == l.ProductID {
			return repository.ErrDuplicate
		}
	}
	l.ID = r.m.id()
	l.CreatedAt = time.Now()
	r.m.state.links[l.ID] = *l
	return nil
}

func (r memLinks) GetByID(ctx context.Context, id int64) (*model.AffiliateLink, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.state.links[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (r memLinks) GetByCode(ctx context.Context, code string) (*model.AffiliateLink, error) {
	return r.find(func(l model.AffiliateLink) bool { return l.Code == code })
}

func (r memLinks) GetByAffiliateAndProduct(ctx context.Context, affiliateID, productID int64) (*model.AffiliateLink, error) {
	return r.find(func(l model.AffiliateLink) bool {
		return l.AffiliateID == affiliateID && l.ProductID == productID
	})
}

func (r memLinks) find(match func(model.AffiliateLink) bool) (*model.AffiliateLink, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, l := range r.m.state.links {
		if match(l) {
			l := l
			return &l, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memLinks) ListByAffiliateID(ctx context.Context, affiliateID int64) ([]*model.AffiliateLink, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []*model.AffiliateLink
	for _, l := range r.m.state.links {
		if l.AffiliateID == affiliateID {
			l := l
			list = append(list, &l)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r memLinks) update(id int64, fn func(l *model.AffiliateLink)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.state.links[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&l)
	r.m.state.links[id] = l
	return nil
}

func (r memLinks) IncrementClicks(ctx context.Context, id int64) error {
	return r.update(id, func(l *model.AffiliateLink) { l.Clicks++ })
}

func (r memLinks) RecordConversion(ctx context.Context, id int64, commission int64) error {
	return r.update(id, func(l *model.AffiliateLink) {
		l.Conversions++
		l.CommissionEarned += commission
	})
}

func (r memLinks) Deactivate(ctx context.Context, id int64) error {
	return r.update(id, func(l *model.AffiliateLink) { l.Active = false })
}

type memWallets struct{ m *memStore }

func (r memWallets) GetByID(ctx context.Context, userID int64) (*model.Profile, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.state.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memWallets) GetByIDForUpdate(ctx context.Context, userID int64) (*model.Profile, error) {
	return r.GetByID(ctx, userID)
}

func (r memWallets) GetOrCreate(ctx context.Context, userID int64) (*model.Profile, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.state.profiles[userID]
	if !ok {
		p = model.Profile{ID: userID, CreatedAt: time.Now()}
		r.m.state.profiles[userID] = p
	}
	return &p, nil
}

func (r memWallets) Credit(ctx context.Context, userID int64, amount int64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("wallets.credit"); err != nil {
		return 0, err
	}
	p := r.m.state.profiles[userID]
	p.ID = userID
	p.WalletBalance += amount
	p.Version++
	r.m.state.profiles[userID] = p
	return p.WalletBalance, nil
}

func (r memWallets) Debit(ctx context.Context, userID int64, amount int64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("wallets.debit"); err != nil {
		return 0, err
	}
	p, ok := r.m.state.profiles[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if p.WalletBalance < amount {
		return 0, repository.ErrBalanceNotEnough
	}
	p.WalletBalance -= amount
	p.Version++
	r.m.state.profiles[userID] = p
	return p.WalletBalance, nil
}

type memLedger struct{ m *memStore }

func (r memLedger) Create(ctx context.Context, t *model.Transaction) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("ledger.create"); err != nil {
		return err
	}
	for _, existing := range r.m.state.ledger {
		if existing.TransactionNo == t.TransactionNo {
			return repository.ErrDuplicate
		}
	}
	t.ID = r.m.id()
	t.CreatedAt = time.Now()
	r.m.state.ledger = append(r.m.state.ledger, *t)
	return nil
}

func (r memLedger) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []*model.Transaction
	for i := len(r.m.state.ledger) - 1; i >= 0; i-- {
		t := r.m.state.ledger[i]
		if t.UserID == userID {
			all = append(all, &t)
		}
	}
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []*model.Transaction{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r memLedger) ListByReferenceID(ctx context.Context, referenceID string) ([]*model.Transaction, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []*model.Transaction
	for _, t := range r.m.state.ledger {
		if t.ReferenceID == referenceID {
			t := t
			list = append(list, &t)
		}
	}
	return list, nil
}

func (r memLedger) SumSignedByUserID(ctx context.Context, userID int64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var sum int64
	for _, t := range r.m.state.ledger {
		if t.UserID == userID {
			sum += t.SignedAmount()
		}
	}
	return sum, nil
}

type memWithdrawals struct{ m *memStore }

func (r memWithdrawals) Create(ctx context.Context, w *model.Withdrawal) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.withdrawals[w.WithdrawalNo]; ok {
		return repository.ErrDuplicate
	}
	w.ID = r.m.id()
	w.CreatedAt = time.Now()
	r.m.state.withdrawals[w.WithdrawalNo] = *w
	return nil
}

func (r memWithdrawals) GetByWithdrawalNo(ctx context.Context, withdrawalNo string) (*model.Withdrawal, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.state.withdrawals[withdrawalNo]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (r memWithdrawals) ListByUserID(ctx context.Context, userID int64) ([]*model.Withdrawal, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []*model.Withdrawal
	for _, w := range r.m.state.withdrawals {
		if w.UserID == userID {
			w := w
			list = append(list, &w)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (r memWithdrawals) UpdateStatus(ctx context.Context, withdrawalNo string, from, to string, reviewerID int64, note string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.state.withdrawals[withdrawalNo]
	if !ok || w.Status != from || !model.CanWithdrawalTransitionTo(from, to) {
		return repository.ErrStatusConflict
	}
	now := time.Now()
	w.Status = to
	w.ReviewedBy = &reviewerID
	w.ReviewNote = note
	w.ReviewedAt = &now
	r.m.state.withdrawals[withdrawalNo] = w
	return nil
}

type memOutbox struct{ m *memStore }

func (r memOutbox) Create(ctx context.Context, msg *model.OutboxMessage) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("outbox.create"); err != nil {
		return err
	}
	msg.ID = r.m.id()
	msg.CreatedAt = time.Now()
	r.m.state.outbox = append(r.m.state.outbox, *msg)
	return nil
}

// ---- 购物车与锁 ----

type memCarts struct {
	mu    sync.Mutex
	carts map[string]model.Cart
}

func newMemCarts() *memCarts {
	return &memCarts{carts: map[string]model.Cart{}}
}

func (c *memCarts) Get(ctx context.Context, cartID string) (*model.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[cartID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cart.Lines = append([]model.CartLine(nil), cart.Lines...)
	return &cart, nil
}

func (c *memCarts) Save(ctx context.Context, cart *model.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := *cart
	stored.Lines = append([]model.CartLine(nil), cart.Lines...)
	c.carts[cart.ID] = stored
	return nil
}

func (c *memCarts) Delete(ctx context.Context, cartID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, cartID)
	return nil
}

type memLocker struct {
	mu     sync.Mutex
	err    error
	locks  int
	unlock int
}

func (l *memLocker) LockUser(ctx context.Context, userID int64, owner string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locks++
	return func() {
		l.mu.Lock()
		l.unlock++
		l.mu.Unlock()
	}, nil
}

var errInjected = errors.New("injected failure")
