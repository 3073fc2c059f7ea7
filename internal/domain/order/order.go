package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates order-level lifecycle states.
type Status string

const (
	StatusPending            Status = "Pending"
	StatusProcessing         Status = "Processing"
	StatusShipped            Status = "Shipped"
	StatusDelivered          Status = "Delivered"
	StatusCancelled          Status = "Cancelled"
	StatusPartiallyCancelled Status = "PartiallyCancelled"
	StatusReturnPending      Status = "ReturnPending"
	StatusReturned           Status = "Returned"
	StatusReturnRejected     Status = "ReturnRejected"
)

// ItemStatus enumerates per-item lifecycle states.
type ItemStatus string

const (
	ItemPending        ItemStatus = "Pending"
	ItemProcessing     ItemStatus = "Processing"
	ItemShipped        ItemStatus = "Shipped"
	ItemDelivered      ItemStatus = "Delivered"
	ItemCancelled      ItemStatus = "Cancelled"
	ItemReturnPending  ItemStatus = "ReturnPending"
	ItemReturned       ItemStatus = "Returned"
	ItemReturnRejected ItemStatus = "ReturnRejected"
)

// PaymentMethod enumerates how an order is paid.
type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "cod"
	PaymentWallet  PaymentMethod = "wallet"
	PaymentGateway PaymentMethod = "gateway"
)

// PaymentStatus tracks how much of the order has been collected or refunded.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "Pending"
	PaymentPaid              PaymentStatus = "Paid"
	PaymentFailed            PaymentStatus = "Failed"
	PaymentRefunded          PaymentStatus = "Refunded"
	PaymentPartiallyRefunded PaymentStatus = "PartiallyRefunded"
	PaymentNotApplicable     PaymentStatus = "N/A"
)

// RefundStatus tracks the outcome of a single refund attempt.
type RefundStatus string

const (
	RefundInitiated RefundStatus = "Initiated"
	RefundProcessed RefundStatus = "Processed"
	RefundFailed    RefundStatus = "Failed"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrItemNotFound is returned when an order has no item with the given id.
	ErrItemNotFound = errors.New("order item not found")
	// ErrDuplicatePayment is returned when an order already exists for a
	// gateway payment reference.
	ErrDuplicatePayment = errors.New("order already exists for this payment")
)

// StateConflictError indicates an operation is not valid in the order's (or
// item's) current status.
type StateConflictError struct {
	Op     string
	Status string
}

func (e *StateConflictError) Error() string {
	return "cannot " + e.Op + " in status " + e.Status
}

// Address is an immutable shipping-address snapshot taken at order time.
type Address struct {
	AddressID string `json:"address_id,omitempty"`
	Name      string `json:"name"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Pincode   string `json:"pincode"`
	Phone     string `json:"phone"`
}

// Item is a single line item in an order. Name, image and price are
// snapshots of the product at order time.
type Item struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Image        string          `json:"image,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Status       ItemStatus      `json:"status"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	ReturnReason string          `json:"return_reason,omitempty"`
	DeliveredAt  *time.Time      `json:"delivered_at,omitempty"`
	ReturnedAt   *time.Time      `json:"returned_at,omitempty"`
}

// Cancellable reports whether the item can still be cancelled.
func (i *Item) Cancellable() bool {
	return i.Status == ItemPending || i.Status == ItemProcessing
}

// Refund is one audit-trail entry for a refund attempt on an order.
// The ID is the idempotency key for the attempt.
type Refund struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	ItemIDs    []string        `json:"item_ids,omitempty"`
	Status     RefundStatus    `json:"status"`
	GatewayRef string          `json:"gateway_ref,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Order is the aggregate root for the order lifecycle. It exclusively owns
// its items and refund records. Orders are never physically deleted.
type Order struct {
	ID         string
	UserID     string
	Items      []Item
	Address    Address
	SubTotal   decimal.Decimal
	Discount   decimal.Decimal
	// GrandTotal is fixed at placement (subTotal - discount at that moment).
	// It is the amount charged for prepaid orders and the cap base for all
	// refunds; item cancellations reduce SubTotal and Discount but not this.
	GrandTotal decimal.Decimal
	CouponID   string
	CouponCode string

	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	WalletAmountUsed decimal.Decimal
	PaymentIntentID  string
	PaymentRef       string

	Status       Status
	Refunds      []Refund
	CancelReason string
	ReturnReason string
	DeliveredAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Cancellable reports whether the whole order can still be cancelled.
func (o *Order) Cancellable() bool {
	return o.Status == StatusPending || o.Status == StatusProcessing
}

// Returnable reports whether a return can be requested. Only fully delivered
// orders qualify.
func (o *Order) Returnable() bool {
	return o.Status == StatusDelivered
}

// Item returns the item with the given id, or nil.
func (o *Order) Item(itemID string) *Item {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// RefundedTotal returns the sum of all Processed refund amounts.
func (o *Order) RefundedTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range o.Refunds {
		if r.Status == RefundProcessed {
			sum = sum.Add(r.Amount)
		}
	}
	return sum
}

// MaxRefundable returns how much can still be refunded: the grand total
// charged at placement minus everything already processed, floored at zero.
// This cap makes repeated or overlapping refund attempts safe.
func (o *Order) MaxRefundable() decimal.Decimal {
	left := o.GrandTotal.Sub(o.RefundedTotal())
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// CapRefund clamps a requested refund amount by MaxRefundable.
func (o *Order) CapRefund(requested decimal.Decimal) decimal.Decimal {
	return decimal.Min(requested, o.MaxRefundable())
}

// AmountPaid returns how much money was actually collected for the order.
// Prepaid orders are charged their grand total at placement; cash on
// delivery collects nothing until the order is delivered and marked paid.
func (o *Order) AmountPaid() decimal.Decimal {
	if o.PaymentMethod == PaymentCOD {
		switch o.PaymentStatus {
		case PaymentPaid, PaymentPartiallyRefunded, PaymentRefunded:
			return o.GrandTotal
		default:
			return decimal.Zero
		}
	}
	return o.GrandTotal
}

// ProrationFor computes an item's share of the order-level discount and the
// resulting base refund, prorated by the item's share of the current
// subtotal: ratio = item.subtotal / order.subTotal.
func (o *Order) ProrationFor(item *Item) (proratedDiscount, baseRefund decimal.Decimal) {
	if o.SubTotal.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	ratio := item.Subtotal.Div(o.SubTotal)
	proratedDiscount = ratio.Mul(o.Discount).Round(2)
	baseRefund = item.Subtotal.Sub(proratedDiscount)
	if baseRefund.IsNegative() {
		baseRefund = decimal.Zero
	}
	return proratedDiscount, baseRefund
}

// RecalculateStatus derives the order-level status from item statuses after
// an item mutation: all items cancelled means Cancelled, some cancelled
// means PartiallyCancelled, otherwise the status is left unchanged.
func (o *Order) RecalculateStatus() {
	cancelled := 0
	for i := range o.Items {
		if o.Items[i].Status == ItemCancelled {
			cancelled++
		}
	}
	switch {
	case cancelled == len(o.Items) && len(o.Items) > 0:
		o.Status = StatusCancelled
	case cancelled > 0:
		o.Status = StatusPartiallyCancelled
	}
}

// RecalculatePaymentStatus derives the payment status from processed refunds
// versus the amount actually collected. Orders with nothing collected and
// nothing refunded keep their current payment status.
func (o *Order) RecalculatePaymentStatus() {
	refunded := o.RefundedTotal()
	if !refunded.IsPositive() {
		return
	}
	switch {
	case refunded.GreaterThanOrEqual(o.AmountPaid()):
		o.PaymentStatus = PaymentRefunded
	default:
		o.PaymentStatus = PaymentPartiallyRefunded
	}
}

// DetachCoupon clears the applied coupon and zeroes the order-level
// discount, so subsequent prorations operate on a coupon-free order.
func (o *Order) DetachCoupon() {
	o.CouponID = ""
	o.CouponCode = ""
	o.Discount = decimal.Zero
}
