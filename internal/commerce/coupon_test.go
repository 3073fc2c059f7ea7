package commerce_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shoppie-backend/internal/domain/cart"
	"github.com/xenking/shoppie-backend/internal/domain/coupon"
)

func intPtr(v int) *int { return &v }

func TestApplyCoupon_PercentageDiscount(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.store.AddCoupon(pct10(100))
	f.fillCart(t, map[string]int{"p1": 3})

	c, err := f.coupons.Apply(context.Background(), testUser, "pct10 ")
	require.NoError(t, err)

	// Codes are normalized before lookup.
	assert.Equal(t, "PCT10", c.CouponCode)
	assert.True(t, c.Discount.Equal(decimal.NewFromInt(30)))
	assert.True(t, c.FinalTotal.Equal(decimal.NewFromInt(270)))

	cpn, err := f.store.CouponByID(context.Background(), "coupon-pct10")
	require.NoError(t, err)
	assert.Equal(t, 1, cpn.UsedCount)
}

func TestApplyCoupon_FlatCappedAtSubtotal(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 30, 10)
	f.store.AddCoupon(coupon.Coupon{
		ID:        "coupon-flat",
		Code:      "FLAT50",
		Type:      coupon.DiscountFlat,
		Value:     decimal.NewFromInt(50),
		ExpiresAt: testTime.Add(24 * time.Hour),
		Active:    true,
	})
	f.fillCart(t, map[string]int{"p1": 1})

	c, err := f.coupons.Apply(context.Background(), testUser, "FLAT50")
	require.NoError(t, err)

	// A 50 flat discount on a 30 cart never goes negative.
	assert.True(t, c.Discount.Equal(decimal.NewFromInt(30)))
	assert.True(t, c.FinalTotal.IsZero())
}

func TestApplyCoupon_EmptyCart(t *testing.T) {
	f := newFixture(t)
	f.store.AddCoupon(pct10(0))

	_, err := f.coupons.Apply(context.Background(), testUser, "PCT10")
	assert.ErrorIs(t, err, cart.ErrNotFound)
}

func TestApplyCoupon_UnknownCode(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	_, err := f.coupons.Apply(context.Background(), testUser, "NOPE")
	assert.ErrorIs(t, err, coupon.ErrNotFound)

	_, err = f.coupons.Apply(context.Background(), testUser, "  ")
	assert.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestApplyCoupon_Expired(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	cpn := pct10(0)
	cpn.ExpiresAt = testTime.Add(-time.Hour)
	f.store.AddCoupon(cpn)
	f.fillCart(t, map[string]int{"p1": 1})

	_, err := f.coupons.Apply(context.Background(), testUser, "PCT10")
	assert.ErrorIs(t, err, coupon.ErrExpired)
}

func TestApplyCoupon_MinPurchase(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.store.AddCoupon(pct10(500))
	f.fillCart(t, map[string]int{"p1": 1})

	_, err := f.coupons.Apply(context.Background(), testUser, "PCT10")
	var minErr *coupon.MinPurchaseError
	require.ErrorAs(t, err, &minErr)
	assert.True(t, minErr.MinPurchase.Equal(decimal.NewFromInt(500)))
}

func TestApplyCoupon_UsageLimit(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	cpn := pct10(0)
	cpn.UsageLimit = intPtr(1)
	cpn.UsedCount = 1
	f.store.AddCoupon(cpn)
	f.fillCart(t, map[string]int{"p1": 1})

	_, err := f.coupons.Apply(context.Background(), testUser, "PCT10")
	assert.ErrorIs(t, err, coupon.ErrUsageLimitReached)
}

func TestApplyCoupon_PerUserLimit(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	cpn := pct10(0)
	cpn.PerUserLimit = intPtr(1)
	f.store.AddCoupon(cpn)

	// First redemption goes through a full apply-and-place cycle.
	f.fillCart(t, map[string]int{"p1": 1})
	_, err := f.coupons.Apply(context.Background(), testUser, "PCT10")
	require.NoError(t, err)
	_, err = f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	// The second attempt hits the per-user cap; another user is unaffected.
	f.fillCart(t, map[string]int{"p1": 1})
	_, err = f.coupons.Apply(context.Background(), testUser, "PCT10")
	var limitErr *coupon.PerUserLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 1, limitErr.Limit)

	_, err = f.carts.AddToCart(context.Background(), "user-2", "p1", 1)
	require.NoError(t, err)
	_, err = f.coupons.Apply(context.Background(), "user-2", "PCT10")
	assert.NoError(t, err)
}

func TestApplyCoupon_Double(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.store.AddCoupon(pct10(0))
	f.fillCart(t, map[string]int{"p1": 1})

	_, err := f.coupons.Apply(context.Background(), testUser, "PCT10")
	require.NoError(t, err)

	_, err = f.coupons.Apply(context.Background(), testUser, "PCT10")
	assert.ErrorIs(t, err, cart.ErrCouponAlreadyApplied)
}

func TestRemoveCoupon_RestoresUsage(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	cpn := pct10(0)
	cpn.PerUserLimit = intPtr(1)
	f.store.AddCoupon(cpn)
	f.fillCart(t, map[string]int{"p1": 2})

	_, err := f.coupons.Apply(context.Background(), testUser, "PCT10")
	require.NoError(t, err)

	c, err := f.coupons.Remove(context.Background(), testUser)
	require.NoError(t, err)
	assert.False(t, c.HasCoupon())
	assert.True(t, c.FinalTotal.Equal(decimal.NewFromInt(200)))

	// Removal released both the global use and the user's redemption, so
	// the coupon can be applied again.
	stored, err := f.store.CouponByID(context.Background(), "coupon-pct10")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsedCount)

	_, err = f.coupons.Apply(context.Background(), testUser, "PCT10")
	assert.NoError(t, err)
}

func TestRemoveCoupon_NoneApplied(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	_, err := f.coupons.Remove(context.Background(), testUser)
	assert.ErrorIs(t, err, cart.ErrNoCouponApplied)
}
