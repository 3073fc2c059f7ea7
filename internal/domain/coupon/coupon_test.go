package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscountFor(t *testing.T) {
	tests := []struct {
		name     string
		coupon   Coupon
		subtotal decimal.Decimal
		want     decimal.Decimal
	}{
		{
			name:     "percentage",
			coupon:   Coupon{Type: DiscountPercentage, Value: decimal.NewFromInt(10)},
			subtotal: decimal.NewFromInt(250),
			want:     decimal.NewFromInt(25),
		},
		{
			name:     "percentage rounds to cents",
			coupon:   Coupon{Type: DiscountPercentage, Value: decimal.NewFromInt(15)},
			subtotal: decimal.NewFromFloat(33.33),
			want:     decimal.NewFromFloat(5.00),
		},
		{
			name:     "flat",
			coupon:   Coupon{Type: DiscountFlat, Value: decimal.NewFromInt(50)},
			subtotal: decimal.NewFromInt(200),
			want:     decimal.NewFromInt(50),
		},
		{
			name:     "flat capped at subtotal",
			coupon:   Coupon{Type: DiscountFlat, Value: decimal.NewFromInt(50)},
			subtotal: decimal.NewFromInt(30),
			want:     decimal.NewFromInt(30),
		},
		{
			name:     "negative value floored at zero",
			coupon:   Coupon{Type: DiscountFlat, Value: decimal.NewFromInt(-5)},
			subtotal: decimal.NewFromInt(100),
			want:     decimal.Zero,
		},
		{
			name:     "unknown type yields nothing",
			coupon:   Coupon{Type: "bogus", Value: decimal.NewFromInt(10)},
			subtotal: decimal.NewFromInt(100),
			want:     decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.coupon.DiscountFor(tt.subtotal)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestCheckEligible(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	limit := 3

	base := Coupon{
		Code:        "SAVE",
		Type:        DiscountPercentage,
		Value:       decimal.NewFromInt(10),
		MinPurchase: decimal.NewFromInt(100),
		ExpiresAt:   now.Add(24 * time.Hour),
		Active:      true,
	}

	tests := []struct {
		name     string
		mutate   func(c *Coupon)
		subtotal decimal.Decimal
		wantErr  error
	}{
		{
			name:     "eligible",
			mutate:   func(*Coupon) {},
			subtotal: decimal.NewFromInt(150),
		},
		{
			name:     "inactive reads as unknown",
			mutate:   func(c *Coupon) { c.Active = false },
			subtotal: decimal.NewFromInt(150),
			wantErr:  ErrNotFound,
		},
		{
			name:     "soft-deleted reads as unknown",
			mutate:   func(c *Coupon) { c.Deleted = true },
			subtotal: decimal.NewFromInt(150),
			wantErr:  ErrNotFound,
		},
		{
			name:     "expired",
			mutate:   func(c *Coupon) { c.ExpiresAt = now.Add(-time.Minute) },
			subtotal: decimal.NewFromInt(150),
			wantErr:  ErrExpired,
		},
		{
			name:     "usage limit reached",
			mutate:   func(c *Coupon) { c.UsageLimit = &limit; c.UsedCount = 3 },
			subtotal: decimal.NewFromInt(150),
			wantErr:  ErrUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.CheckEligible(now, tt.subtotal)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCheckEligible_MinPurchase(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := Coupon{
		Code:        "SAVE",
		MinPurchase: decimal.NewFromInt(100),
		ExpiresAt:   now.Add(time.Hour),
		Active:      true,
	}

	err := c.CheckEligible(now, decimal.NewFromInt(99))
	var minErr *MinPurchaseError
	require.ErrorAs(t, err, &minErr)
	assert.Equal(t, "SAVE", minErr.Code)

	// Exactly at the threshold is allowed.
	assert.NoError(t, c.CheckEligible(now, decimal.NewFromInt(100)))
}
