package commerce

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/shoppie-backend/internal/domain/cart"
	"github.com/xenking/shoppie-backend/internal/domain/coupon"
	"github.com/xenking/shoppie-backend/internal/domain/product"
)

// CartService is the cart pricing engine: it owns every cart mutation and
// keeps subtotal, discount and final total consistent with the item list and
// the applied coupon.
type CartService struct {
	store Store
	now   func() time.Time
}

// NewCartService creates a CartService backed by the given store.
func NewCartService(store Store, opts ...Option) *CartService {
	s := settings{now: time.Now}
	s.apply(opts)
	return &CartService{store: store, now: s.now}
}

// AddToCart adds quantity units of a product to the user's cart, creating
// the cart on first use. Carts keep a single entry per product, so adding an
// already-present product increases its quantity. The product must be
// active, not deleted, and have enough stock to cover the resulting
// quantity.
func (s *CartService) AddToCart(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error) {
	if quantity <= 0 {
		return nil, errors.New("quantity must be greater than 0")
	}

	var result *cart.Cart
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.ProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if !p.Purchasable() {
			return product.ErrNotFound
		}

		c, err := tx.CartForUpdate(ctx, userID)
		if errors.Is(err, cart.ErrNotFound) {
			c = &cart.Cart{UserID: userID}
		} else if err != nil {
			return err
		}

		want := quantity
		if item := c.Find(productID); item != nil {
			want += item.Quantity
		}
		if p.Quantity < want {
			return &product.OutOfStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: want,
				Available: p.Quantity,
			}
		}

		if item := c.Find(productID); item != nil {
			item.Quantity = want
			item.Price = p.Price()
		} else {
			c.Items = append(c.Items, cart.Item{
				ProductID:   p.ID,
				ProductName: p.Name,
				Image:       p.Image,
				Quantity:    quantity,
				Price:       p.Price(),
			})
		}

		c.Recalculate()
		if err := s.revalidate(ctx, tx, c); err != nil {
			return err
		}

		c.UpdatedAt = s.now()
		result = c
		return tx.SaveCart(ctx, c)
	})
	return result, err
}

// RemoveFromCart removes a product entry from the cart and reprices it,
// revalidating any applied coupon against the reduced subtotal.
func (s *CartService) RemoveFromCart(ctx context.Context, userID, productID string) (*cart.Cart, error) {
	var result *cart.Cart
	err := s.store.InTx(ctx, func(tx Tx) error {
		c, err := tx.CartForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !c.Remove(productID) {
			return cart.ErrItemNotFound
		}

		c.Recalculate()
		if err := s.revalidate(ctx, tx, c); err != nil {
			return err
		}

		c.UpdatedAt = s.now()
		result = c
		return tx.SaveCart(ctx, c)
	})
	return result, err
}

// GetCart returns the user's cart with the applied coupon revalidated
// against current coupon state. The revalidation is in-memory only; viewing
// a cart never persists changes.
func (s *CartService) GetCart(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := s.store.Cart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.HasCoupon() {
		cpn, err := s.store.CouponByID(ctx, c.CouponID)
		if err != nil && !errors.Is(err, coupon.ErrNotFound) {
			return nil, err
		}
		c.RevalidateCoupon(cpn, s.now())
	}
	return c, nil
}

// revalidate re-checks the cart's applied coupon inside a write transaction.
// A detach here is persisted together with the mutation that triggered it.
func (s *CartService) revalidate(ctx context.Context, tx Tx, c *cart.Cart) error {
	if !c.HasCoupon() {
		return nil
	}
	cpn, err := tx.CouponForUpdate(ctx, c.CouponID)
	if err != nil && !errors.Is(err, coupon.ErrNotFound) {
		return err
	}
	c.RevalidateCoupon(cpn, s.now())
	return nil
}
