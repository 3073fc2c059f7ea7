package commerce

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/shoppie-backend/internal/domain/cart"
	"github.com/xenking/shoppie-backend/internal/domain/coupon"
)

// CouponTracker applies and removes coupons on carts while keeping the
// coupon's aggregate usage counter and the user's redemption history in
// step. All three writes (cart, coupon, redemptions) commit together.
type CouponTracker struct {
	store Store
	now   func() time.Time
}

// NewCouponTracker creates a CouponTracker backed by the given store.
func NewCouponTracker(store Store, opts ...Option) *CouponTracker {
	s := settings{now: time.Now}
	s.apply(opts)
	return &CouponTracker{store: store, now: s.now}
}

// Apply attaches the coupon with the given code to the user's cart.
// It rejects empty carts, double application, unknown/inactive/expired
// codes, subtotals below the minimum purchase, exhausted global usage
// limits, and exhausted per-user limits.
func (t *CouponTracker) Apply(ctx context.Context, userID, code string) (*cart.Cart, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, coupon.ErrNotFound
	}

	var result *cart.Cart
	err := t.store.InTx(ctx, func(tx Tx) error {
		c, err := tx.CartForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if len(c.Items) == 0 {
			return cart.ErrEmpty
		}
		if c.HasCoupon() {
			return cart.ErrCouponAlreadyApplied
		}

		cpn, err := tx.CouponByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if err := cpn.CheckEligible(t.now(), c.SubTotal); err != nil {
			return err
		}
		if cpn.PerUserLimit != nil {
			used, err := tx.CountRedemptions(ctx, cpn.ID, userID)
			if err != nil {
				return err
			}
			if used >= *cpn.PerUserLimit {
				return &coupon.PerUserLimitError{Code: cpn.Code, Limit: *cpn.PerUserLimit, Used: used}
			}
		}

		c.CouponID = cpn.ID
		c.CouponCode = cpn.Code
		c.Discount = cpn.DiscountFor(c.SubTotal)
		c.Recalculate()
		c.UpdatedAt = t.now()

		if err := tx.SaveCart(ctx, c); err != nil {
			return err
		}
		if err := tx.IncrementCouponUses(ctx, cpn.ID); err != nil {
			return err
		}
		if err := tx.AddRedemption(ctx, cpn.ID, userID); err != nil {
			return err
		}
		result = c
		return nil
	})
	return result, err
}

// Remove detaches the applied coupon from the user's cart, releasing one
// global use and one of the user's redemptions. Removing from a cart without
// a coupon fails with cart.ErrNoCouponApplied.
func (t *CouponTracker) Remove(ctx context.Context, userID string) (*cart.Cart, error) {
	var result *cart.Cart
	err := t.store.InTx(ctx, func(tx Tx) error {
		c, err := tx.CartForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !c.HasCoupon() {
			return cart.ErrNoCouponApplied
		}

		couponID := c.CouponID
		c.DetachCoupon()
		c.Recalculate()
		c.UpdatedAt = t.now()

		if err := tx.SaveCart(ctx, c); err != nil {
			return err
		}
		// The coupon row may have been deleted since application; releasing
		// the use is best effort in that case.
		if err := tx.DecrementCouponUses(ctx, couponID); err != nil && !errors.Is(err, coupon.ErrNotFound) {
			return err
		}
		if err := tx.RemoveRedemption(ctx, couponID, userID); err != nil {
			return err
		}
		result = c
		return nil
	})
	return result, err
}
