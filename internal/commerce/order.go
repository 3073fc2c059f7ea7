package commerce

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shoppie-backend/internal/domain/cart"
	"github.com/xenking/shoppie-backend/internal/domain/coupon"
	"github.com/xenking/shoppie-backend/internal/domain/order"
	"github.com/xenking/shoppie-backend/internal/domain/product"
	"github.com/xenking/shoppie-backend/internal/domain/wallet"
	"github.com/xenking/shoppie-backend/internal/gateway"
)

var (
	// ErrInvalidSignature is returned when a gateway payment callback fails
	// signature verification.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrAmountMismatch is returned when the amount reported by the client
	// does not match the authoritative cart total.
	ErrAmountMismatch = errors.New("payment amount does not match cart total")
)

// OrderService is the order lifecycle manager. It orchestrates placement,
// cancellation, partial cancellation and returns across the stock ledger,
// the wallet ledger, the coupon tracker and the payment gateway.
//
// Cancellation paths run as two sequential transactions: the state change
// with its stock restore commits first, then the refund attempt with its
// wallet credit and refund record. A failed gateway refund therefore never
// unwinds a committed cancellation; it leaves a Failed refund record behind
// for retry.
type OrderService struct {
	store    Store
	gateway  gateway.Client
	secret   []byte
	currency string

	now   func() time.Time
	newID func() string
}

// NewOrderService creates an OrderService. secret is the gateway callback
// signing secret, injected from configuration.
func NewOrderService(store Store, gw gateway.Client, secret []byte, currency string, opts ...Option) *OrderService {
	s := settings{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	s.apply(opts)
	return &OrderService{
		store:    store,
		gateway:  gw,
		secret:   secret,
		currency: currency,
		now:      s.now,
		newID:    s.newID,
	}
}

// PlaceOrderInput carries the checkout parameters for cod and wallet orders.
type PlaceOrderInput struct {
	Method  order.PaymentMethod
	Address order.Address
}

// PlaceOrder places an order from the user's cart, paying cash on delivery
// or from the wallet. The whole placement is one transaction: wallet debit,
// per-item stock decrement, order creation and cart deletion commit together
// or not at all. Cart deletion doubles as the serialization point, so two
// concurrent placements from the same cart cannot both succeed.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, in PlaceOrderInput) (*order.Order, error) {
	if in.Method != order.PaymentCOD && in.Method != order.PaymentWallet {
		return nil, errors.Errorf("unsupported payment method %q", in.Method)
	}

	var placed *order.Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := s.placeFromCart(ctx, tx, userID, in.Method, in.Address)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	return placed, err
}

// CreateCheckout starts the gateway payment flow: it prices the user's cart
// authoritatively and creates a payment intent for the final total.
func (s *OrderService) CreateCheckout(ctx context.Context, userID string) (*gateway.Intent, error) {
	c, err := s.store.Cart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, cart.ErrEmpty
	}
	if c.HasCoupon() {
		cpn, err := s.store.CouponByID(ctx, c.CouponID)
		if err != nil && !errors.Is(err, coupon.ErrNotFound) {
			return nil, err
		}
		c.RevalidateCoupon(cpn, s.now())
	}

	intent, err := s.gateway.CreateIntent(ctx, c.FinalTotal, s.currency, userID)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return intent, nil
}

// ConfirmPaymentInput carries the gateway callback for a completed payment.
type ConfirmPaymentInput struct {
	IntentID  string
	PaymentID string
	Signature string
	Amount    decimal.Decimal
	Address   order.Address
}

// ConfirmPayment verifies a gateway payment callback and places the order.
// The signature is checked before anything else; the claimed amount is
// verified against the stored cart, never trusted from the client. Replayed
// callbacks for an already-processed intent return the existing order.
func (s *OrderService) ConfirmPayment(ctx context.Context, userID string, in ConfirmPaymentInput) (*order.Order, error) {
	if !gateway.VerifySignature(s.secret, in.IntentID, in.PaymentID, in.Signature) {
		return nil, ErrInvalidSignature
	}

	var placed *order.Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		// Duplicate-order guard: a replayed callback must not place twice.
		existingID, err := tx.OrderIDByPaymentIntent(ctx, in.IntentID)
		if err != nil && !errors.Is(err, order.ErrNotFound) {
			return err
		}
		if existingID != "" {
			existing, err := tx.OrderForUpdate(ctx, existingID)
			if err != nil {
				return err
			}
			placed = existing
			return nil
		}

		o, err := s.placeFromCart(ctx, tx, userID, order.PaymentGateway, in.Address)
		if err != nil {
			return err
		}
		if !o.GrandTotal.Equal(in.Amount) {
			return ErrAmountMismatch
		}
		o.PaymentIntentID = in.IntentID
		o.PaymentRef = in.PaymentID
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		placed = o
		return nil
	})
	return placed, err
}

// placeFromCart builds and persists an order from the user's cart inside tx.
// It revalidates the applied coupon, debits the wallet for wallet-funded
// orders, checks and decrements stock per item, and deletes the cart.
func (s *OrderService) placeFromCart(ctx context.Context, tx Tx, userID string, method order.PaymentMethod, addr order.Address) (*order.Order, error) {
	c, err := tx.CartForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, cart.ErrEmpty
	}

	// Authoritative repricing: the coupon is re-fetched and the discount
	// recomputed against current cart state.
	if c.HasCoupon() {
		cpn, err := tx.CouponForUpdate(ctx, c.CouponID)
		if err != nil && !errors.Is(err, coupon.ErrNotFound) {
			return nil, err
		}
		c.RevalidateCoupon(cpn, s.now())
	} else {
		c.Recalculate()
	}

	prepaid := method != order.PaymentCOD
	now := s.now()

	items := make([]order.Item, 0, len(c.Items))
	for _, ci := range c.Items {
		p, err := tx.ProductForUpdate(ctx, ci.ProductID)
		if err != nil {
			return nil, err
		}
		if !p.Active || p.Deleted || p.Quantity < ci.Quantity {
			return nil, &product.OutOfStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: ci.Quantity,
				Available: p.Quantity,
			}
		}
		if err := tx.AdjustStock(ctx, p.ID, -ci.Quantity); err != nil {
			return nil, err
		}

		status := order.ItemPending
		if prepaid {
			status = order.ItemProcessing
		}
		items = append(items, order.Item{
			ID:          s.newID(),
			ProductID:   ci.ProductID,
			ProductName: ci.ProductName,
			Image:       ci.Image,
			Quantity:    ci.Quantity,
			Price:       ci.Price,
			Subtotal:    ci.Subtotal().Round(2),
			Status:      status,
		})
	}

	o := &order.Order{
		ID:            s.newID(),
		UserID:        userID,
		Items:         items,
		Address:       addr,
		SubTotal:      c.SubTotal,
		Discount:      c.Discount,
		GrandTotal:    c.FinalTotal,
		CouponID:      c.CouponID,
		CouponCode:    c.CouponCode,
		PaymentMethod: method,
		PaymentStatus: order.PaymentPending,
		Status:        order.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if prepaid {
		o.PaymentStatus = order.PaymentPaid
		o.Status = order.StatusProcessing
	}

	if method == order.PaymentWallet {
		w, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !w.CanDebit(o.GrandTotal) {
			return nil, &wallet.InsufficientBalanceError{
				Balance:  w.Balance,
				Required: o.GrandTotal,
			}
		}
		if o.GrandTotal.IsPositive() {
			if err := tx.DebitWallet(ctx, userID, o.GrandTotal, "Payment for order "+o.ID); err != nil {
				return nil, err
			}
		}
		o.WalletAmountUsed = o.GrandTotal
	}

	if err := tx.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	if err := tx.DeleteCart(ctx, userID); err != nil {
		return nil, err
	}
	return o, nil
}

// CancelOrder cancels a whole order that is still Pending or Processing:
// every item is marked cancelled, its stock restored, and for prepaid orders
// a single lump refund (capped by what has not been refunded yet) is
// attempted in a follow-up transaction.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID, reason string) (*order.Order, error) {
	var (
		cancelled    *order.Order
		refundAmount decimal.Decimal
		itemIDs      []string
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := s.ownedOrderForUpdate(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		if !o.Cancellable() {
			return &order.StateConflictError{Op: "cancel order", Status: string(o.Status)}
		}

		itemIDs = itemIDs[:0]
		for i := range o.Items {
			it := &o.Items[i]
			if it.Status == order.ItemCancelled {
				continue
			}
			if err := tx.AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
			it.Status = order.ItemCancelled
			it.CancelReason = reason
			itemIDs = append(itemIDs, it.ID)
		}

		o.Status = order.StatusCancelled
		o.CancelReason = reason
		o.UpdatedAt = s.now()
		if o.PaymentMethod == order.PaymentCOD {
			// Nothing was collected.
			o.PaymentStatus = order.PaymentNotApplicable
		}

		refundAmount = o.CapRefund(o.AmountPaid())
		cancelled = o
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	if refundAmount.IsPositive() {
		if err := s.refund(ctx, cancelled, refundAmount, itemIDs, "Refund for cancelled order "+cancelled.ID); err != nil {
			return cancelled, err
		}
	}
	return s.store.Order(ctx, orderID)
}

// CancelItem cancels a single line item. The refund is the item's subtotal
// minus its prorated share of the order discount, capped against the whole
// order's processed-refund total. If the remaining subtotal drops below the
// applied coupon's minimum purchase, the coupon is detached so further
// prorations run coupon-free.
func (s *OrderService) CancelItem(ctx context.Context, userID, orderID, itemID, reason string) (*order.Order, error) {
	var (
		updated      *order.Order
		refundAmount decimal.Decimal
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := s.ownedOrderForUpdate(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		if !o.Cancellable() && o.Status != order.StatusPartiallyCancelled {
			return &order.StateConflictError{Op: "cancel item", Status: string(o.Status)}
		}
		it := o.Item(itemID)
		if it == nil {
			return order.ErrItemNotFound
		}
		if !it.Cancellable() {
			return &order.StateConflictError{Op: "cancel item", Status: string(it.Status)}
		}

		proratedDiscount, baseRefund := o.ProrationFor(it)

		if err := tx.AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
			return err
		}
		it.Status = order.ItemCancelled
		it.CancelReason = reason

		o.SubTotal = o.SubTotal.Sub(it.Subtotal).Round(2)
		o.Discount = o.Discount.Sub(proratedDiscount)
		if o.Discount.IsNegative() {
			o.Discount = decimal.Zero
		}

		if o.CouponID != "" {
			cpn, err := tx.CouponForUpdate(ctx, o.CouponID)
			switch {
			case errors.Is(err, coupon.ErrNotFound):
				o.DetachCoupon()
			case err != nil:
				return err
			case o.SubTotal.LessThan(cpn.MinPurchase):
				o.DetachCoupon()
			}
		}

		o.RecalculateStatus()
		o.UpdatedAt = s.now()

		if o.AmountPaid().IsPositive() {
			refundAmount = o.CapRefund(baseRefund)
		}
		updated = o
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	if refundAmount.IsPositive() {
		if err := s.refund(ctx, updated, refundAmount, []string{itemID}, "Refund for cancelled item in order "+updated.ID); err != nil {
			return updated, err
		}
	}
	return s.store.Order(ctx, orderID)
}

// ReturnOrder requests a return for a delivered order. The order moves to
// ReturnPending; stock and money only move once the return is approved.
func (s *OrderService) ReturnOrder(ctx context.Context, userID, orderID, reason string) (*order.Order, error) {
	var updated *order.Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := s.ownedOrderForUpdate(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		if !o.Returnable() {
			return &order.StateConflictError{Op: "return order", Status: string(o.Status)}
		}

		o.Status = order.StatusReturnPending
		o.ReturnReason = reason
		for i := range o.Items {
			if o.Items[i].Status == order.ItemDelivered {
				o.Items[i].Status = order.ItemReturnPending
				o.Items[i].ReturnReason = reason
			}
		}
		o.UpdatedAt = s.now()
		updated = o
		return tx.SaveOrder(ctx, o)
	})
	return updated, err
}

// ResolveReturn settles a pending return. Approval restores stock, marks the
// order Returned and refunds everything still refundable; rejection puts the
// order back in Delivered state for its items and marks it ReturnRejected.
func (s *OrderService) ResolveReturn(ctx context.Context, orderID string, approve bool) (*order.Order, error) {
	var (
		resolved     *order.Order
		refundAmount decimal.Decimal
		itemIDs      []string
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != order.StatusReturnPending {
			return &order.StateConflictError{Op: "resolve return", Status: string(o.Status)}
		}

		now := s.now()
		for i := range o.Items {
			it := &o.Items[i]
			if it.Status != order.ItemReturnPending {
				continue
			}
			if approve {
				if err := tx.AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
				it.Status = order.ItemReturned
				it.ReturnedAt = &now
				itemIDs = append(itemIDs, it.ID)
			} else {
				it.Status = order.ItemDelivered
			}
		}

		if approve {
			o.Status = order.StatusReturned
			refundAmount = o.CapRefund(o.AmountPaid())
		} else {
			o.Status = order.StatusReturnRejected
		}
		o.UpdatedAt = now
		resolved = o
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	if approve && refundAmount.IsPositive() {
		if err := s.refund(ctx, resolved, refundAmount, itemIDs, "Refund for returned order "+resolved.ID); err != nil {
			return resolved, err
		}
	}
	return s.store.Order(ctx, orderID)
}

// AdvanceStatus moves an order forward through the fulfilment states
// Pending -> Processing -> Shipped -> Delivered. Non-cancelled items follow
// the order; delivery stamps DeliveredAt and marks cash-on-delivery orders
// as paid.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID string, to order.Status) (*order.Order, error) {
	next := map[order.Status]order.Status{
		order.StatusPending:    order.StatusProcessing,
		order.StatusProcessing: order.StatusShipped,
		order.StatusShipped:    order.StatusDelivered,
	}

	var updated *order.Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if next[o.Status] != to {
			return &order.StateConflictError{Op: "advance to " + string(to), Status: string(o.Status)}
		}

		now := s.now()
		o.Status = to
		for i := range o.Items {
			it := &o.Items[i]
			if it.Status == order.ItemCancelled {
				continue
			}
			switch to {
			case order.StatusProcessing:
				it.Status = order.ItemProcessing
			case order.StatusShipped:
				it.Status = order.ItemShipped
			case order.StatusDelivered:
				it.Status = order.ItemDelivered
				it.DeliveredAt = &now
			}
		}
		if to == order.StatusDelivered {
			o.DeliveredAt = &now
			if o.PaymentMethod == order.PaymentCOD {
				o.PaymentStatus = order.PaymentPaid
			}
		}
		o.UpdatedAt = now
		updated = o
		return tx.SaveOrder(ctx, o)
	})
	return updated, err
}

// Orders returns the user's orders, newest first.
func (s *OrderService) Orders(ctx context.Context, userID string) ([]order.Order, error) {
	return s.store.OrdersByUser(ctx, userID)
}

// GetOrder returns one of the user's orders.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*order.Order, error) {
	o, err := s.store.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// refund executes the second transaction of a cancellation or return: the
// gateway refund attempt (for gateway-funded orders), the wallet credit, and
// the refund record append. Refunds always land in the wallet, not on the
// original payment instrument. A gateway failure (including context
// timeouts) is committed as a Failed refund record and reported to the
// caller; the preceding state change stays committed.
func (s *OrderService) refund(ctx context.Context, o *order.Order, amount decimal.Decimal, itemIDs []string, description string) error {
	var (
		gatewayRef string
		gatewayErr error
	)
	if o.PaymentMethod == order.PaymentGateway {
		res, err := s.gateway.Refund(ctx, o.PaymentRef, amount)
		if err != nil {
			gatewayErr = err
		} else {
			gatewayRef = res.RefundID
		}
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		fresh, err := tx.OrderForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}

		rec := order.Refund{
			ID:        s.newID(),
			Amount:    amount,
			ItemIDs:   itemIDs,
			Status:    order.RefundProcessed,
			CreatedAt: s.now(),
		}
		if gatewayErr != nil {
			rec.Status = order.RefundFailed
		} else {
			rec.GatewayRef = gatewayRef
			if err := tx.CreditWallet(ctx, fresh.UserID, amount, description); err != nil {
				return err
			}
		}

		fresh.Refunds = append(fresh.Refunds, rec)
		fresh.RecalculatePaymentStatus()
		fresh.UpdatedAt = s.now()
		return tx.SaveOrder(ctx, fresh)
	})
	if err != nil {
		return err
	}
	if gatewayErr != nil {
		return errors.Wrap(gatewayErr, "gateway refund")
	}
	return nil
}

// ownedOrderForUpdate locks an order row and verifies ownership. Orders
// belonging to other users are reported as not found.
func (s *OrderService) ownedOrderForUpdate(ctx context.Context, tx Tx, userID, orderID string) (*order.Order, error) {
	o, err := tx.OrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrNotFound
	}
	return o, nil
}
