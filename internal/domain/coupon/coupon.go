package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFlat applies a fixed monetary discount capped at the subtotal.
	DiscountFlat DiscountType = "flat"
)

var (
	// ErrNotFound is returned when a coupon code does not exist or the
	// coupon is inactive or soft-deleted.
	ErrNotFound = errors.New("invalid coupon code")
	// ErrExpired is returned when a coupon is past its expiry date.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when a coupon has exhausted its
	// global usage limit.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

// MinPurchaseError indicates the cart subtotal is below the coupon's
// minimum purchase threshold.
type MinPurchaseError struct {
	Code        string
	MinPurchase decimal.Decimal
}

func (e *MinPurchaseError) Error() string {
	return "minimum purchase of " + e.MinPurchase.StringFixed(2) + " required for coupon " + e.Code
}

// PerUserLimitError indicates the user has already redeemed the coupon the
// maximum allowed number of times.
type PerUserLimitError struct {
	Code  string
	Limit int
	Used  int
}

func (e *PerUserLimitError) Error() string {
	return "per-user limit reached for coupon " + e.Code
}

// Coupon defines a discount code with its eligibility constraints.
// UsageLimit and PerUserLimit are nil when unlimited.
type Coupon struct {
	ID           string
	Code         string
	Description  string
	Type         DiscountType
	Value        decimal.Decimal
	MinPurchase  decimal.Decimal
	ExpiresAt    time.Time
	UsageLimit   *int
	PerUserLimit *int
	UsedCount    int
	Active       bool
	Deleted      bool
}

// Usable reports whether the coupon is visible to customers at all.
func (c *Coupon) Usable() bool {
	return c.Active && !c.Deleted
}

// Expired reports whether the coupon is past its expiry date at now.
func (c *Coupon) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// DiscountFor computes the discount amount for the given subtotal.
// Percentage discounts are subtotal*value/100; flat discounts are the value
// itself. Both are capped at the subtotal and floored at zero.
func (c *Coupon) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
	case DiscountFlat:
		amount = c.Value
	default:
		return decimal.Zero
	}
	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}

// CheckEligible verifies the coupon can be applied to a cart with the given
// subtotal at now. Per-user limits are checked separately because they need
// the user's redemption count.
func (c *Coupon) CheckEligible(now time.Time, subtotal decimal.Decimal) error {
	if !c.Usable() {
		return ErrNotFound
	}
	if c.Expired(now) {
		return ErrExpired
	}
	if subtotal.LessThan(c.MinPurchase) {
		return &MinPurchaseError{Code: c.Code, MinPurchase: c.MinPurchase}
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return ErrUsageLimitReached
	}
	return nil
}
