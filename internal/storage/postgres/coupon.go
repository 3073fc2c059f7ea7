package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shoppie-backend/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, discount_type, discount_value, min_purchase,
		expires_at, usage_limit, per_user_limit, used_count, active, deleted`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 AND deleted = FALSE`

	getCouponByIDForUpdateSQL = getCouponByIDSQL + ` FOR UPDATE`

	getCouponByCodeForUpdateSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE UPPER(code) = UPPER($1) AND active = TRUE AND deleted = FALSE FOR UPDATE`

	incrementCouponUsesSQL = `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`

	decrementCouponUsesSQL = `UPDATE coupons SET used_count = GREATEST(used_count - 1, 0) WHERE id = $1`

	countRedemptionsSQL = `SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2`

	addRedemptionSQL = `INSERT INTO coupon_redemptions (coupon_id, user_id) VALUES ($1, $2)`

	// Removes a single redemption entry, mirroring "remove one matching
	// element from the user's used-coupons list".
	removeRedemptionSQL = `DELETE FROM coupon_redemptions WHERE id = (
		SELECT id FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2
		ORDER BY id DESC LIMIT 1)`
)

// CouponByID looks up a coupon by id, including inactive ones (an applied
// coupon must still be revalidatable after deactivation).
func (q queries) CouponByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return q.getCoupon(ctx, getCouponByIDSQL, id)
}

// CouponForUpdate locks and returns a coupon row by id.
func (q queries) CouponForUpdate(ctx context.Context, id string) (*coupon.Coupon, error) {
	return q.getCoupon(ctx, getCouponByIDForUpdateSQL, id)
}

// CouponByCodeForUpdate locks and returns an active coupon by its code
// (case-insensitive).
func (q queries) CouponByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	return q.getCoupon(ctx, getCouponByCodeForUpdateSQL, code)
}

func (q queries) getCoupon(ctx context.Context, sql, key string) (*coupon.Coupon, error) {
	rows, err := q.db.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", key, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", key, err)
	}
	return &c, nil
}

// IncrementCouponUses bumps the coupon's aggregate usage counter.
func (q queries) IncrementCouponUses(ctx context.Context, id string) error {
	return q.adjustCouponUses(ctx, incrementCouponUsesSQL, id)
}

// DecrementCouponUses releases one use, floored at zero.
func (q queries) DecrementCouponUses(ctx context.Context, id string) error {
	return q.adjustCouponUses(ctx, decrementCouponUsesSQL, id)
}

func (q queries) adjustCouponUses(ctx context.Context, sql, id string) error {
	tag, err := q.db.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("updating uses for coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// CountRedemptions returns how many times the user has redeemed the coupon.
func (q queries) CountRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, countRedemptionsSQL, couponID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting redemptions for coupon %q: %w", couponID, err)
	}
	return n, nil
}

// AddRedemption records one redemption of the coupon by the user.
func (q queries) AddRedemption(ctx context.Context, couponID, userID string) error {
	_, err := q.db.Exec(ctx, addRedemptionSQL, couponID, userID)
	if err != nil {
		return fmt.Errorf("adding redemption for coupon %q: %w", couponID, err)
	}
	return nil
}

// RemoveRedemption deletes one redemption entry, if any exists.
func (q queries) RemoveRedemption(ctx context.Context, couponID, userID string) error {
	_, err := q.db.Exec(ctx, removeRedemptionSQL, couponID, userID)
	if err != nil {
		return fmt.Errorf("removing redemption for coupon %q: %w", couponID, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		usageLimit   *int32
		perUserLimit *int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &discountType, &c.Value, &c.MinPurchase,
		&c.ExpiresAt, &usageLimit, &perUserLimit, &c.UsedCount, &c.Active, &c.Deleted,
	)
	c.Type = coupon.DiscountType(discountType)
	if usageLimit != nil {
		v := int(*usageLimit)
		c.UsageLimit = &v
	}
	if perUserLimit != nil {
		v := int(*perUserLimit)
		c.PerUserLimit = &v
	}
	return c, err
}
