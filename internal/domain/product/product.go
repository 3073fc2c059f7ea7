package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist or has
// been soft-deleted.
var ErrNotFound = errors.New("product not found")

// OutOfStockError indicates a product cannot satisfy a requested quantity.
type OutOfStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return "insufficient stock for " + e.Name
}

// Product represents a catalog item available for purchase. Quantity is the
// stock on hand; the stock ledger never lets it go negative.
type Product struct {
	ID           string
	Name         string
	Category     string
	Image        string
	Quantity     int
	RegularPrice decimal.Decimal
	SalePrice    decimal.Decimal
	Active       bool
	Deleted      bool
}

// Purchasable reports whether the product can currently be added to a cart.
func (p *Product) Purchasable() bool {
	return p.Active && !p.Deleted && p.Quantity > 0
}

// Price returns the effective unit price: the sale price when set below the
// regular price, otherwise the regular price.
func (p *Product) Price() decimal.Decimal {
	if p.SalePrice.IsPositive() && p.SalePrice.LessThan(p.RegularPrice) {
		return p.SalePrice
	}
	return p.RegularPrice
}

// Repository defines read operations for the product catalog. Stock
// mutations happen inside store transactions, not through this interface.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}
