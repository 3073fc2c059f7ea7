package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shoppie-backend/internal/domain/order"
)

const (
	orderColumns = `id, user_id, items, address, sub_total, discount, grand_total,
		coupon_id, coupon_code, payment_method, payment_status, order_status,
		wallet_amount_used, payment_intent_id, payment_ref, refunds,
		cancel_reason, return_reason, delivered_at, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	updateOrderSQL = `UPDATE orders SET
		items = $2, sub_total = $3, discount = $4, grand_total = $5,
		coupon_id = $6, coupon_code = $7, payment_status = $8, order_status = $9,
		wallet_amount_used = $10, payment_intent_id = $11, payment_ref = $12,
		refunds = $13, cancel_reason = $14, return_reason = $15,
		delivered_at = $16, updated_at = $17
		WHERE id = $1`

	getOrderIDByIntentSQL = `SELECT id FROM orders WHERE payment_intent_id = $1`
)

// CreateOrder persists a new order. Items, address snapshot and refund
// records are serialized to JSON for storage in JSONB columns.
func (q queries) CreateOrder(ctx context.Context, o *order.Order) error {
	itemsJSON, addressJSON, refundsJSON, err := marshalOrder(o)
	if err != nil {
		return err
	}

	_, err = q.db.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, addressJSON, o.SubTotal, o.Discount, o.GrandTotal,
		nullable(o.CouponID), nullable(o.CouponCode), string(o.PaymentMethod),
		string(o.PaymentStatus), string(o.Status), o.WalletAmountUsed,
		nullable(o.PaymentIntentID), nullable(o.PaymentRef), refundsJSON,
		nullable(o.CancelReason), nullable(o.ReturnReason), o.DeliveredAt,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Order returns a single order by id.
func (q queries) Order(ctx context.Context, id string) (*order.Order, error) {
	return q.getOrder(ctx, getOrderSQL, id)
}

// OrderForUpdate locks and returns a single order row.
func (q queries) OrderForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return q.getOrder(ctx, getOrderForUpdateSQL, id)
}

func (q queries) getOrder(ctx context.Context, sql, id string) (*order.Order, error) {
	rows, err := q.db.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// OrdersByUser returns the user's orders, newest first.
func (q queries) OrdersByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}

	ptrs, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	orders := make([]order.Order, len(ptrs))
	for i, p := range ptrs {
		orders[i] = *p
	}
	return orders, nil
}

// SaveOrder writes back every mutable order field.
func (q queries) SaveOrder(ctx context.Context, o *order.Order) error {
	itemsJSON, _, refundsJSON, err := marshalOrder(o)
	if err != nil {
		return err
	}

	tag, err := q.db.Exec(ctx, updateOrderSQL,
		o.ID, itemsJSON, o.SubTotal, o.Discount, o.GrandTotal,
		nullable(o.CouponID), nullable(o.CouponCode), string(o.PaymentStatus),
		string(o.Status), o.WalletAmountUsed, nullable(o.PaymentIntentID),
		nullable(o.PaymentRef), refundsJSON, nullable(o.CancelReason),
		nullable(o.ReturnReason), o.DeliveredAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// OrderIDByPaymentIntent returns the id of the order created for a gateway
// payment intent, or order.ErrNotFound.
func (q queries) OrderIDByPaymentIntent(ctx context.Context, intentID string) (string, error) {
	var id string
	err := q.db.QueryRow(ctx, getOrderIDByIntentSQL, intentID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", order.ErrNotFound
		}
		return "", fmt.Errorf("looking up order by intent %q: %w", intentID, err)
	}
	return id, nil
}

// assign copies a nullable column value into its string field.
func assign(src, dst *string) {
	if src != nil {
		*dst = *src
	}
}

func marshalOrder(o *order.Order) (items, address, refunds []byte, err error) {
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling order items: %w", err)
	}
	if address, err = json.Marshal(o.Address); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling order address: %w", err)
	}
	if refunds, err = json.Marshal(o.Refunds); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling order refunds: %w", err)
	}
	return items, address, refunds, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		addressJSON   []byte
		refundsJSON   []byte
		couponID      *string
		couponCode    *string
		method        string
		paymentStatus string
		status        string
		intentID      *string
		paymentRef    *string
		cancelReason  *string
		returnReason  *string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &addressJSON, &o.SubTotal, &o.Discount, &o.GrandTotal,
		&couponID, &couponCode, &method, &paymentStatus, &status,
		&o.WalletAmountUsed, &intentID, &paymentRef, &refundsJSON,
		&cancelReason, &returnReason, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.Address); err != nil {
		return nil, fmt.Errorf("unmarshaling order address: %w", err)
	}
	if err := json.Unmarshal(refundsJSON, &o.Refunds); err != nil {
		return nil, fmt.Errorf("unmarshaling order refunds: %w", err)
	}

	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)
	assign(couponID, &o.CouponID)
	assign(couponCode, &o.CouponCode)
	assign(intentID, &o.PaymentIntentID)
	assign(paymentRef, &o.PaymentRef)
	assign(cancelReason, &o.CancelReason)
	assign(returnReason, &o.ReturnReason)
	return &o, nil
}
