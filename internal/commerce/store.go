// Package commerce implements the core engines of the shop backend: the cart
// pricing engine, the coupon usage tracker, the wallet ledger, and the order
// lifecycle manager. Every multi-entity mutation runs through Store.InTx so
// commit/abort discipline lives in exactly one place.
package commerce

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/shoppie-backend/internal/domain/cart"
	"github.com/xenking/shoppie-backend/internal/domain/coupon"
	"github.com/xenking/shoppie-backend/internal/domain/order"
	"github.com/xenking/shoppie-backend/internal/domain/product"
	"github.com/xenking/shoppie-backend/internal/domain/wallet"
)

// Store is the persistence boundary for the commerce services. Reads outside
// a transaction go through the plain getters; every mutation happens inside
// InTx, which either commits all writes performed through the Tx or none.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Cart(ctx context.Context, userID string) (*cart.Cart, error)
	CouponByID(ctx context.Context, id string) (*coupon.Coupon, error)
	Order(ctx context.Context, id string) (*order.Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]order.Order, error)
	Wallet(ctx context.Context, userID string) (*wallet.Wallet, error)
	WalletTransactions(ctx context.Context, userID string) ([]wallet.Transaction, error)
}

// Tx is the set of operations available inside a transaction. ForUpdate
// getters take row locks so that concurrent mutations of the same cart,
// order, wallet, product or coupon serialize instead of double-applying.
type Tx interface {
	// Carts.
	CartForUpdate(ctx context.Context, userID string) (*cart.Cart, error)
	SaveCart(ctx context.Context, c *cart.Cart) error
	DeleteCart(ctx context.Context, userID string) error

	// Product stock ledger. AdjustStock rejects adjustments that would
	// drive the quantity negative.
	ProductForUpdate(ctx context.Context, id string) (*product.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int) error

	// Wallet ledger. Debit fails on insufficient balance; both append a
	// transaction history entry.
	WalletForUpdate(ctx context.Context, userID string) (*wallet.Wallet, error)
	CreditWallet(ctx context.Context, userID string, amount decimal.Decimal, description string) error
	DebitWallet(ctx context.Context, userID string, amount decimal.Decimal, description string) error

	// Coupons and per-user redemption tracking.
	CouponByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error)
	CouponForUpdate(ctx context.Context, id string) (*coupon.Coupon, error)
	IncrementCouponUses(ctx context.Context, id string) error
	DecrementCouponUses(ctx context.Context, id string) error
	CountRedemptions(ctx context.Context, couponID, userID string) (int, error)
	AddRedemption(ctx context.Context, couponID, userID string) error
	RemoveRedemption(ctx context.Context, couponID, userID string) error

	// Orders.
	CreateOrder(ctx context.Context, o *order.Order) error
	OrderForUpdate(ctx context.Context, id string) (*order.Order, error)
	SaveOrder(ctx context.Context, o *order.Order) error
	OrderIDByPaymentIntent(ctx context.Context, intentID string) (string, error)
}
