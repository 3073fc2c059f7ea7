// Package memory implements the commerce store in process memory. It backs
// the unit tests and local development: transactions clone the full state
// and swap it in on commit, so a failed transaction leaves nothing behind,
// and a single mutex serializes concurrent transactions the way row locks
// do in PostgreSQL.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shoppie-backend/internal/commerce"
	"github.com/xenking/shoppie-backend/internal/domain/cart"
	"github.com/xenking/shoppie-backend/internal/domain/coupon"
	"github.com/xenking/shoppie-backend/internal/domain/order"
	"github.com/xenking/shoppie-backend/internal/domain/product"
	"github.com/xenking/shoppie-backend/internal/domain/wallet"
)

type redemption struct {
	CouponID string
	UserID   string
}

type state struct {
	products     map[string]*product.Product
	coupons      map[string]*coupon.Coupon
	carts        map[string]*cart.Cart
	wallets      map[string]decimal.Decimal
	transactions map[string][]wallet.Transaction
	orders       map[string]*order.Order
	redemptions  []redemption
	txSeq        int
}

func newState() *state {
	return &state{
		products:     make(map[string]*product.Product),
		coupons:      make(map[string]*coupon.Coupon),
		carts:        make(map[string]*cart.Cart),
		wallets:      make(map[string]decimal.Decimal),
		transactions: make(map[string][]wallet.Transaction),
		orders:       make(map[string]*order.Order),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	for id, cpn := range s.coupons {
		cc := *cpn
		if cpn.UsageLimit != nil {
			v := *cpn.UsageLimit
			cc.UsageLimit = &v
		}
		if cpn.PerUserLimit != nil {
			v := *cpn.PerUserLimit
			cc.PerUserLimit = &v
		}
		c.coupons[id] = &cc
	}
	for id, crt := range s.carts {
		c.carts[id] = cloneCart(crt)
	}
	for id, b := range s.wallets {
		c.wallets[id] = b
	}
	for id, txs := range s.transactions {
		c.transactions[id] = append([]wallet.Transaction(nil), txs...)
	}
	for id, o := range s.orders {
		c.orders[id] = cloneOrder(o)
	}
	c.redemptions = append([]redemption(nil), s.redemptions...)
	c.txSeq = s.txSeq
	return c
}

func cloneCart(c *cart.Cart) *cart.Cart {
	cc := *c
	cc.Items = append([]cart.Item(nil), c.Items...)
	return &cc
}

func cloneOrder(o *order.Order) *order.Order {
	oo := *o
	oo.Items = append([]order.Item(nil), o.Items...)
	oo.Refunds = append([]order.Refund(nil), o.Refunds...)
	return &oo
}

var _ commerce.Store = (*Store)(nil)

// Store is an in-memory commerce.Store.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// InTx runs fn against a cloned state and swaps it in only when fn returns
// nil, giving all-or-nothing semantics.
func (m *Store) InTx(_ context.Context, fn func(tx commerce.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.state.clone()
	if err := fn(&memTx{s: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// --- Seeding helpers for tests and local development ---

// AddProduct inserts or replaces a catalog product.
func (m *Store) AddProduct(p product.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = &p
}

// AddCoupon inserts or replaces a coupon.
func (m *Store) AddCoupon(c coupon.Coupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.coupons[c.ID] = &c
}

// SetBalance sets a user's wallet balance directly, without a history entry.
func (m *Store) SetBalance(userID string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.wallets[userID] = balance
}

// --- Reads ---

// List returns all purchasable catalog products, ordered by name.
func (m *Store) List(_ context.Context) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]product.Product, 0, len(m.state.products))
	for _, p := range m.state.products {
		if p.Active && !p.Deleted {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetByID returns a single product by its identifier.
func (m *Store) GetByID(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.state.products[id]
	if !ok || p.Deleted {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Cart returns a copy of the user's cart.
func (m *Store) Cart(_ context.Context, userID string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.carts[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return cloneCart(c), nil
}

// CouponByID returns a copy of the coupon with the given id.
func (m *Store) CouponByID(_ context.Context, id string) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return getCoupon(m.state, id)
}

// Order returns a copy of the order with the given id.
func (m *Store) Order(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

// OrdersByUser returns the user's orders, newest first.
func (m *Store) OrdersByUser(_ context.Context, userID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.state.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Wallet returns the user's wallet, creating an empty one on first access.
func (m *Store) Wallet(_ context.Context, userID string) (*wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &wallet.Wallet{UserID: userID, Balance: m.state.wallets[userID]}, nil
}

// WalletTransactions returns the wallet history, newest first.
func (m *Store) WalletTransactions(_ context.Context, userID string) ([]wallet.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := append([]wallet.Transaction(nil), m.state.transactions[userID]...)
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	return txs, nil
}

var _ commerce.Tx = (*memTx)(nil)

// memTx operates on the staged state of one transaction.
type memTx struct {
	s *state
}

func (t *memTx) CartForUpdate(_ context.Context, userID string) (*cart.Cart, error) {
	c, ok := t.s.carts[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (t *memTx) SaveCart(_ context.Context, c *cart.Cart) error {
	t.s.carts[c.UserID] = cloneCart(c)
	return nil
}

func (t *memTx) DeleteCart(_ context.Context, userID string) error {
	delete(t.s.carts, userID)
	return nil
}

func (t *memTx) ProductForUpdate(_ context.Context, id string) (*product.Product, error) {
	p, ok := t.s.products[id]
	if !ok || p.Deleted {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (t *memTx) AdjustStock(_ context.Context, productID string, delta int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	if p.Quantity+delta < 0 {
		return errors.Errorf("stock for product %q cannot go below zero", productID)
	}
	p.Quantity += delta
	return nil
}

func (t *memTx) WalletForUpdate(_ context.Context, userID string) (*wallet.Wallet, error) {
	return &wallet.Wallet{UserID: userID, Balance: t.s.wallets[userID]}, nil
}

func (t *memTx) CreditWallet(_ context.Context, userID string, amount decimal.Decimal, description string) error {
	t.s.wallets[userID] = t.s.wallets[userID].Add(amount)
	t.appendTransaction(userID, wallet.Credit, amount, description)
	return nil
}

func (t *memTx) DebitWallet(_ context.Context, userID string, amount decimal.Decimal, description string) error {
	balance := t.s.wallets[userID]
	if balance.LessThan(amount) {
		return &wallet.InsufficientBalanceError{Balance: balance, Required: amount}
	}
	t.s.wallets[userID] = balance.Sub(amount)
	t.appendTransaction(userID, wallet.Debit, amount, description)
	return nil
}

func (t *memTx) appendTransaction(userID string, typ wallet.TransactionType, amount decimal.Decimal, description string) {
	t.s.txSeq++
	t.s.transactions[userID] = append(t.s.transactions[userID], wallet.Transaction{
		ID:          "wtx-" + strconv.Itoa(t.s.txSeq),
		Type:        typ,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now(),
	})
}

func (t *memTx) CouponByCodeForUpdate(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range t.s.coupons {
		if c.Code == code && c.Active && !c.Deleted {
			return c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (t *memTx) CouponForUpdate(_ context.Context, id string) (*coupon.Coupon, error) {
	return getCoupon(t.s, id)
}

func getCoupon(s *state, id string) (*coupon.Coupon, error) {
	c, ok := s.coupons[id]
	if !ok || c.Deleted {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (t *memTx) IncrementCouponUses(_ context.Context, id string) error {
	c, err := getCoupon(t.s, id)
	if err != nil {
		return err
	}
	c.UsedCount++
	return nil
}

func (t *memTx) DecrementCouponUses(_ context.Context, id string) error {
	c, err := getCoupon(t.s, id)
	if err != nil {
		return err
	}
	if c.UsedCount > 0 {
		c.UsedCount--
	}
	return nil
}

func (t *memTx) CountRedemptions(_ context.Context, couponID, userID string) (int, error) {
	n := 0
	for _, r := range t.s.redemptions {
		if r.CouponID == couponID && r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) AddRedemption(_ context.Context, couponID, userID string) error {
	t.s.redemptions = append(t.s.redemptions, redemption{CouponID: couponID, UserID: userID})
	return nil
}

func (t *memTx) RemoveRedemption(_ context.Context, couponID, userID string) error {
	for i := len(t.s.redemptions) - 1; i >= 0; i-- {
		r := t.s.redemptions[i]
		if r.CouponID == couponID && r.UserID == userID {
			t.s.redemptions = append(t.s.redemptions[:i], t.s.redemptions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, o *order.Order) error {
	t.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) OrderForUpdate(_ context.Context, id string) (*order.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (t *memTx) SaveOrder(_ context.Context, o *order.Order) error {
	if _, ok := t.s.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	t.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) OrderIDByPaymentIntent(_ context.Context, intentID string) (string, error) {
	for id, o := range t.s.orders {
		if o.PaymentIntentID == intentID {
			return id, nil
		}
	}
	return "", order.ErrNotFound
}
