package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shoppie-backend/internal/domain/cart"
)

const (
	getCartSQL = `SELECT user_id, items, total_items, sub_total, coupon_id, coupon_code, discount, final_total, updated_at
		FROM carts WHERE user_id = $1`

	getCartForUpdateSQL = getCartSQL + ` FOR UPDATE`

	upsertCartSQL = `INSERT INTO carts (user_id, items, total_items, sub_total, coupon_id, coupon_code, discount, final_total, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			items = EXCLUDED.items,
			total_items = EXCLUDED.total_items,
			sub_total = EXCLUDED.sub_total,
			coupon_id = EXCLUDED.coupon_id,
			coupon_code = EXCLUDED.coupon_code,
			discount = EXCLUDED.discount,
			final_total = EXCLUDED.final_total,
			updated_at = EXCLUDED.updated_at`

	deleteCartSQL = `DELETE FROM carts WHERE user_id = $1`
)

// Cart returns the user's cart without locking it.
func (q queries) Cart(ctx context.Context, userID string) (*cart.Cart, error) {
	return q.getCart(ctx, getCartSQL, userID)
}

// CartForUpdate returns the user's cart under a row lock.
func (q queries) CartForUpdate(ctx context.Context, userID string) (*cart.Cart, error) {
	return q.getCart(ctx, getCartForUpdateSQL, userID)
}

func (q queries) getCart(ctx context.Context, sql, userID string) (*cart.Cart, error) {
	var (
		c          cart.Cart
		itemsJSON  []byte
		couponID   *string
		couponCode *string
	)
	err := q.db.QueryRow(ctx, sql, userID).Scan(
		&c.UserID, &itemsJSON, &c.TotalItems, &c.SubTotal,
		&couponID, &couponCode, &c.Discount, &c.FinalTotal, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}

	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling cart items: %w", err)
	}
	if couponID != nil {
		c.CouponID = *couponID
	}
	if couponCode != nil {
		c.CouponCode = *couponCode
	}
	return &c, nil
}

// SaveCart upserts the cart row. The item list is serialized to JSON for
// storage in the JSONB column.
func (q queries) SaveCart(ctx context.Context, c *cart.Cart) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("marshaling cart items: %w", err)
	}

	_, err = q.db.Exec(ctx, upsertCartSQL,
		c.UserID, itemsJSON, c.TotalItems, c.SubTotal,
		nullable(c.CouponID), nullable(c.CouponCode), c.Discount, c.FinalTotal, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving cart for user %q: %w", c.UserID, err)
	}
	return nil
}

// DeleteCart removes the user's cart. Deleting an already-deleted cart is
// not an error; placement treats the row's disappearance as the
// serialization point.
func (q queries) DeleteCart(ctx context.Context, userID string) error {
	_, err := q.db.Exec(ctx, deleteCartSQL, userID)
	if err != nil {
		return fmt.Errorf("deleting cart for user %q: %w", userID, err)
	}
	return nil
}

// nullable maps empty strings to NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
