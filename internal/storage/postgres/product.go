package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shoppie-backend/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, category, image, quantity, regular_price, sale_price, active, deleted
		FROM products WHERE active = TRUE AND deleted = FALSE ORDER BY name`

	getProductByIDSQL = `SELECT id, name, category, image, quantity, regular_price, sale_price, active, deleted
		FROM products WHERE id = $1 AND deleted = FALSE`

	getProductForUpdateSQL = getProductByIDSQL + ` FOR UPDATE`

	// The quantity check rides on the UPDATE itself so the CHECK constraint
	// is never hit in normal operation.
	adjustStockSQL = `UPDATE products SET quantity = quantity + $2
		WHERE id = $1 AND quantity + $2 >= 0`
)

// List returns all purchasable catalog products.
func (q queries) List(ctx context.Context) ([]product.Product, error) {
	rows, err := q.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (q queries) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return q.getProduct(ctx, getProductByIDSQL, id)
}

// ProductForUpdate returns a product under a row lock for stock mutation.
func (q queries) ProductForUpdate(ctx context.Context, id string) (*product.Product, error) {
	return q.getProduct(ctx, getProductForUpdateSQL, id)
}

func (q queries) getProduct(ctx context.Context, sql, id string) (*product.Product, error) {
	rows, err := q.db.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// AdjustStock changes a product's quantity by delta. Adjustments that would
// drive the quantity negative affect no rows and are rejected.
func (q queries) AdjustStock(ctx context.Context, productID string, delta int) error {
	tag, err := q.db.Exec(ctx, adjustStockSQL, productID, delta)
	if err != nil {
		return fmt.Errorf("adjusting stock for product %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("stock for product %q cannot go below zero", productID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.Image, &p.Quantity,
		&p.RegularPrice, &p.SalePrice, &p.Active, &p.Deleted,
	)
	return p, err
}
