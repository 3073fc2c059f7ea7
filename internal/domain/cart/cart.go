package cart

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shoppie-backend/internal/domain/coupon"
)

var (
	// ErrNotFound is returned when the user has no cart.
	ErrNotFound = errors.New("cart not found")
	// ErrEmpty is returned for operations that require a non-empty cart.
	ErrEmpty = errors.New("cart is empty")
	// ErrItemNotFound is returned when removing a product that is not in the cart.
	ErrItemNotFound = errors.New("product not in cart")
	// ErrCouponAlreadyApplied is returned when applying a coupon over an existing one.
	ErrCouponAlreadyApplied = errors.New("a coupon is already applied")
	// ErrNoCouponApplied is returned when removing a coupon from a cart without one.
	ErrNoCouponApplied = errors.New("no coupon applied")
)

// Item is a single product entry in a cart. Price is a snapshot of the
// product's effective unit price at the time the item was added.
type Item struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Image       string          `json:"image,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Subtotal returns price * quantity for this item.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the mutable pre-order item collection for a single user.
// Derived fields (TotalItems, SubTotal, Discount, FinalTotal) are recomputed
// by Recalculate after every mutation; they are never trusted from input.
type Cart struct {
	UserID     string
	Items      []Item
	TotalItems int
	SubTotal   decimal.Decimal
	CouponID   string
	CouponCode string
	Discount   decimal.Decimal
	FinalTotal decimal.Decimal
	UpdatedAt  time.Time
}

// Find returns a pointer to the cart item for productID, or nil.
func (c *Cart) Find(productID string) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Remove deletes the item for productID. It reports whether an item was removed.
func (c *Cart) Remove(productID string) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// HasCoupon reports whether a coupon is currently attached to the cart.
func (c *Cart) HasCoupon() bool {
	return c.CouponID != ""
}

// DetachCoupon clears the applied coupon and its discount.
func (c *Cart) DetachCoupon() {
	c.CouponID = ""
	c.CouponCode = ""
	c.Discount = decimal.Zero
}

// Recalculate recomputes every derived field from the item list and the
// current discount: totalItems, subTotal and finalTotal = max(subTotal -
// discount, 0). Call it at the end of every mutating operation.
func (c *Cart) Recalculate() {
	total := 0
	subtotal := decimal.Zero
	for _, item := range c.Items {
		total += item.Quantity
		subtotal = subtotal.Add(item.Subtotal())
	}
	c.TotalItems = total
	c.SubTotal = subtotal.Round(2)

	final := c.SubTotal.Sub(c.Discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	c.FinalTotal = final.Round(2)
}

// RevalidateCoupon re-checks the attached coupon against the cart's current
// subtotal. cpn is the freshly fetched coupon, or nil when the coupon row no
// longer exists. If the coupon is missing, unusable, expired, or the subtotal
// dropped below its minimum purchase, the coupon is detached; otherwise the
// discount is recomputed. It reports whether the coupon was detached.
//
// The function only mutates the in-memory cart, so callers can use it both
// read-only (viewing the cart) and before persisting a mutation.
func (c *Cart) RevalidateCoupon(cpn *coupon.Coupon, now time.Time) (detached bool) {
	if !c.HasCoupon() {
		return false
	}
	if cpn == nil || !cpn.Usable() || cpn.Expired(now) || c.SubTotal.LessThan(cpn.MinPurchase) {
		c.DetachCoupon()
		c.Recalculate()
		return true
	}
	c.Discount = cpn.DiscountFor(c.SubTotal)
	c.Recalculate()
	return false
}
