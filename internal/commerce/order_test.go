package commerce_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shoppie-backend/internal/commerce"
	"github.com/xenking/shoppie-backend/internal/domain/cart"
	"github.com/xenking/shoppie-backend/internal/domain/coupon"
	"github.com/xenking/shoppie-backend/internal/domain/order"
	"github.com/xenking/shoppie-backend/internal/domain/product"
	"github.com/xenking/shoppie-backend/internal/domain/wallet"
	"github.com/xenking/shoppie-backend/internal/gateway"
	"github.com/xenking/shoppie-backend/internal/storage/memory"
)

// --- Fixtures ---

var (
	testSecret = []byte("callback-secret")
	testTime   = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

const testUser = "user-1"

type stubGateway struct {
	mu        sync.Mutex
	intents   int
	refunds   []decimal.Decimal
	refundErr error
}

func (g *stubGateway) CreateIntent(_ context.Context, amount decimal.Decimal, currency, _ string) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents++
	return &gateway.Intent{
		ID:       "intent-" + strconv.Itoa(g.intents),
		Amount:   amount,
		Currency: currency,
	}, nil
}

func (g *stubGateway) Refund(_ context.Context, _ string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	return &gateway.RefundResult{RefundID: "gw-refund-" + strconv.Itoa(len(g.refunds))}, nil
}

type fixture struct {
	store   *memory.Store
	gw      *stubGateway
	orders  *commerce.OrderService
	carts   *commerce.CartService
	coupons *commerce.CouponTracker

	// nowAt is what the services' injected clock reads. Tests advance it to
	// simulate the passage of time.
	nowAt time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.NewStore(),
		gw:    &stubGateway{},
		nowAt: testTime,
	}

	clock := commerce.WithClock(func() time.Time { return f.nowAt })
	var seq int
	ids := commerce.WithIDGenerator(func() string {
		seq++
		return "id-" + strconv.Itoa(seq)
	})

	f.orders = commerce.NewOrderService(f.store, f.gw, testSecret, "USD", clock, ids)
	f.carts = commerce.NewCartService(f.store, clock)
	f.coupons = commerce.NewCouponTracker(f.store, clock)
	return f
}

func (f *fixture) addProduct(id string, price int64, stock int) {
	f.store.AddProduct(product.Product{
		ID:           id,
		Name:         "Product " + id,
		Quantity:     stock,
		RegularPrice: decimal.NewFromInt(price),
		Active:       true,
	})
}

func (f *fixture) fillCart(t *testing.T, items map[string]int) {
	t.Helper()
	for id, qty := range items {
		_, err := f.carts.AddToCart(context.Background(), testUser, id, qty)
		require.NoError(t, err)
	}
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.store.GetByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Quantity
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	w, err := f.store.Wallet(context.Background(), testUser)
	require.NoError(t, err)
	return w.Balance
}

func codAddress() commerce.PlaceOrderInput {
	return commerce.PlaceOrderInput{
		Method:  order.PaymentCOD,
		Address: order.Address{Name: "Jo", Street: "1 Main St", City: "Town", Pincode: "00001"},
	}
}

func walletAddress() commerce.PlaceOrderInput {
	in := codAddress()
	in.Method = order.PaymentWallet
	return in
}

func pct10(minPurchase int64) coupon.Coupon {
	return coupon.Coupon{
		ID:          "coupon-pct10",
		Code:        "PCT10",
		Type:        coupon.DiscountPercentage,
		Value:       decimal.NewFromInt(10),
		MinPurchase: decimal.NewFromInt(minPurchase),
		ExpiresAt:   testTime.Add(24 * time.Hour),
		Active:      true,
	}
}

// --- Placement ---

func TestPlaceOrder_ConsumesStockAndCart(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 3})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.True(t, o.GrandTotal.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 7, f.stock(t, "p1"))

	_, err = f.store.Cart(context.Background(), testUser)
	assert.ErrorIs(t, err, cart.ErrNotFound)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	assert.ErrorIs(t, err, cart.ErrNotFound)
}

func TestPlaceOrder_RejectsGatewayMethod(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	_, err := f.orders.PlaceOrder(context.Background(), testUser, commerce.PlaceOrderInput{Method: order.PaymentGateway})
	assert.Error(t, err)
}

func TestPlaceOrder_WalletDebit(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.store.SetBalance(testUser, decimal.NewFromInt(500))
	f.fillCart(t, map[string]int{"p1": 2})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, walletAddress())
	require.NoError(t, err)

	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.True(t, o.WalletAmountUsed.Equal(decimal.NewFromInt(200)))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(300)))

	txs, err := f.store.WalletTransactions(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, wallet.Debit, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(200)))
}

func TestPlaceOrder_InsufficientBalance_NoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.store.SetBalance(testUser, decimal.NewFromInt(50))
	f.fillCart(t, map[string]int{"p1": 2})

	_, err := f.orders.PlaceOrder(context.Background(), testUser, walletAddress())

	var insufficient *wallet.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Required.Equal(decimal.NewFromInt(200)))

	// The failed transaction left everything untouched.
	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(50)))
	_, err = f.store.Cart(context.Background(), testUser)
	assert.NoError(t, err)

	orders, err := f.store.OrdersByUser(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrder_ConcurrentSameCart(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 2})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
			} else {
				succeeded++
			}
		}()
	}
	wg.Wait()

	// Cart deletion serializes concurrent placements: exactly one wins.
	assert.Equal(t, 1, succeeded)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], cart.ErrNotFound)
	assert.Equal(t, 8, f.stock(t, "p1"))
}

func TestPlaceOrder_AppliesCouponAtCharge(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.store.AddCoupon(pct10(100))
	f.fillCart(t, map[string]int{"p1": 3})

	_, err := f.coupons.Apply(context.Background(), testUser, "PCT10")
	require.NoError(t, err)

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	assert.True(t, o.SubTotal.Equal(decimal.NewFromInt(300)))
	assert.True(t, o.Discount.Equal(decimal.NewFromInt(30)))
	assert.True(t, o.GrandTotal.Equal(decimal.NewFromInt(270)))
	assert.Equal(t, "PCT10", o.CouponCode)
}

// --- Gateway checkout ---

func TestConfirmPayment_PlacesOrder(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 2})

	intent, err := f.orders.CreateCheckout(context.Background(), testUser)
	require.NoError(t, err)
	require.True(t, intent.Amount.Equal(decimal.NewFromInt(200)))

	in := commerce.ConfirmPaymentInput{
		IntentID:  intent.ID,
		PaymentID: "pay-1",
		Signature: gateway.Signature(testSecret, intent.ID, "pay-1"),
		Amount:    decimal.NewFromInt(200),
		Address:   codAddress().Address,
	}
	o, err := f.orders.ConfirmPayment(context.Background(), testUser, in)
	require.NoError(t, err)

	assert.Equal(t, order.PaymentGateway, o.PaymentMethod)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, intent.ID, o.PaymentIntentID)
	assert.Equal(t, "pay-1", o.PaymentRef)
	assert.Equal(t, 8, f.stock(t, "p1"))
}

func TestConfirmPayment_ReplayReturnsExistingOrder(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 2})

	intent, err := f.orders.CreateCheckout(context.Background(), testUser)
	require.NoError(t, err)

	in := commerce.ConfirmPaymentInput{
		IntentID:  intent.ID,
		PaymentID: "pay-1",
		Signature: gateway.Signature(testSecret, intent.ID, "pay-1"),
		Amount:    decimal.NewFromInt(200),
	}
	first, err := f.orders.ConfirmPayment(context.Background(), testUser, in)
	require.NoError(t, err)

	second, err := f.orders.ConfirmPayment(context.Background(), testUser, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// Stock was only taken once.
	assert.Equal(t, 8, f.stock(t, "p1"))
}

func TestConfirmPayment_BadSignature(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.ConfirmPayment(context.Background(), testUser, commerce.ConfirmPaymentInput{
		IntentID:  "intent-1",
		PaymentID: "pay-1",
		Signature: "forged",
	})
	assert.ErrorIs(t, err, commerce.ErrInvalidSignature)
}

func TestConfirmPayment_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 2})

	_, err := f.orders.ConfirmPayment(context.Background(), testUser, commerce.ConfirmPaymentInput{
		IntentID:  "intent-1",
		PaymentID: "pay-1",
		Signature: gateway.Signature(testSecret, "intent-1", "pay-1"),
		Amount:    decimal.NewFromInt(120), // tampered, cart totals 200
	})
	require.ErrorIs(t, err, commerce.ErrAmountMismatch)

	// Rejection rolled everything back.
	assert.Equal(t, 10, f.stock(t, "p1"))
	_, err = f.store.Cart(context.Background(), testUser)
	assert.NoError(t, err)
}

// --- Cancellation ---

func TestCancelOrder_CODCollectsNothing(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 3})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	cancelled, err := f.orders.CancelOrder(context.Background(), testUser, o.ID, "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, order.PaymentNotApplicable, cancelled.PaymentStatus)
	assert.Equal(t, "changed my mind", cancelled.CancelReason)
	assert.Empty(t, cancelled.Refunds)
	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.True(t, f.balance(t).IsZero())
}

func TestCancelOrder_WalletRefundsToWallet(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.store.SetBalance(testUser, decimal.NewFromInt(500))
	f.fillCart(t, map[string]int{"p1": 3})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, walletAddress())
	require.NoError(t, err)
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(200)))

	cancelled, err := f.orders.CancelOrder(context.Background(), testUser, o.ID, "")
	require.NoError(t, err)

	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, order.PaymentRefunded, cancelled.PaymentStatus)
	require.Len(t, cancelled.Refunds, 1)
	assert.Equal(t, order.RefundProcessed, cancelled.Refunds[0].Status)
	assert.True(t, cancelled.Refunds[0].Amount.Equal(decimal.NewFromInt(300)))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 10, f.stock(t, "p1"))
}

func TestCancelOrder_TwiceConflicts(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(context.Background(), testUser, o.ID, "")
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(context.Background(), testUser, o.ID, "")
	var conflict *order.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, string(order.StatusCancelled), conflict.Status)

	// Stock was restored exactly once.
	assert.Equal(t, 10, f.stock(t, "p1"))
}

func TestCancelOrder_OtherUsersOrderNotFound(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(context.Background(), "intruder", o.ID, "")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestCancelOrder_GatewayRefundFailureKeepsCancellation(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 2})

	intent, err := f.orders.CreateCheckout(context.Background(), testUser)
	require.NoError(t, err)
	o, err := f.orders.ConfirmPayment(context.Background(), testUser, commerce.ConfirmPaymentInput{
		IntentID:  intent.ID,
		PaymentID: "pay-1",
		Signature: gateway.Signature(testSecret, intent.ID, "pay-1"),
		Amount:    decimal.NewFromInt(200),
	})
	require.NoError(t, err)

	f.gw.refundErr = gateway.ErrRefundRejected

	_, err = f.orders.CancelOrder(context.Background(), testUser, o.ID, "")
	require.ErrorIs(t, err, gateway.ErrRefundRejected)

	// The cancellation itself stands, with a Failed refund on record.
	got, err := f.store.Order(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	require.Len(t, got.Refunds, 1)
	assert.Equal(t, order.RefundFailed, got.Refunds[0].Status)
	assert.Equal(t, 10, f.stock(t, "p1"))
	// No wallet credit for the failed attempt.
	assert.True(t, f.balance(t).IsZero())
}

// --- Item-level cancellation ---

// placeWalletOrderWithCoupon places a 2-item wallet order: p1 200 + p2 100,
// PCT10 coupon, grand total 270.
func placeWalletOrderWithCoupon(t *testing.T, f *fixture, minPurchase int64) *order.Order {
	t.Helper()

	f.addProduct("p1", 200, 10)
	f.addProduct("p2", 100, 10)
	f.store.AddCoupon(pct10(minPurchase))
	f.store.SetBalance(testUser, decimal.NewFromInt(500))
	f.fillCart(t, map[string]int{"p1": 1, "p2": 1})

	_, err := f.coupons.Apply(context.Background(), testUser, "PCT10")
	require.NoError(t, err)

	o, err := f.orders.PlaceOrder(context.Background(), testUser, walletAddress())
	require.NoError(t, err)
	require.True(t, o.GrandTotal.Equal(decimal.NewFromInt(270)))
	return o
}

func itemByProduct(t *testing.T, o *order.Order, productID string) *order.Item {
	t.Helper()
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	t.Fatalf("no item for product %s", productID)
	return nil
}

func TestCancelItem_ProratedRefund(t *testing.T) {
	f := newFixture(t)
	o := placeWalletOrderWithCoupon(t, f, 100)

	// Cancel the 200 item: ratio 200/300, prorated discount 20, refund 180.
	it := itemByProduct(t, o, "p1")
	updated, err := f.orders.CancelItem(context.Background(), testUser, o.ID, it.ID, "wrong size")
	require.NoError(t, err)

	assert.Equal(t, order.StatusPartiallyCancelled, updated.Status)
	assert.True(t, updated.SubTotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, updated.Discount.Equal(decimal.NewFromInt(10)))
	// Grand total is the placement-time charge and never moves.
	assert.True(t, updated.GrandTotal.Equal(decimal.NewFromInt(270)))

	require.Len(t, updated.Refunds, 1)
	assert.True(t, updated.Refunds[0].Amount.Equal(decimal.NewFromInt(180)))
	assert.Equal(t, order.PaymentPartiallyRefunded, updated.PaymentStatus)

	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.Equal(t, 9, f.stock(t, "p2"))
	// 500 - 270 + 180.
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(410)))
}

func TestCancelItem_DetachesCouponBelowMinPurchase(t *testing.T) {
	f := newFixture(t)
	o := placeWalletOrderWithCoupon(t, f, 150)

	// Remaining subtotal 100 drops under the 150 minimum: the coupon comes off.
	it := itemByProduct(t, o, "p1")
	updated, err := f.orders.CancelItem(context.Background(), testUser, o.ID, it.ID, "")
	require.NoError(t, err)

	assert.Empty(t, updated.CouponID)
	assert.Empty(t, updated.CouponCode)
	assert.True(t, updated.Discount.IsZero())
}

func TestCancelItem_AllItemsEqualsFullCancel(t *testing.T) {
	f := newFixture(t)
	o := placeWalletOrderWithCoupon(t, f, 100)

	first := itemByProduct(t, o, "p1")
	updated, err := f.orders.CancelItem(context.Background(), testUser, o.ID, first.ID, "")
	require.NoError(t, err)
	require.Equal(t, order.StatusPartiallyCancelled, updated.Status)

	second := itemByProduct(t, updated, "p2")
	final, err := f.orders.CancelItem(context.Background(), testUser, o.ID, second.ID, "")
	require.NoError(t, err)

	// Cancelling every item individually converges to a full cancellation.
	assert.Equal(t, order.StatusCancelled, final.Status)
	assert.Equal(t, order.PaymentRefunded, final.PaymentStatus)
	assert.True(t, final.RefundedTotal().Equal(final.GrandTotal))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.Equal(t, 10, f.stock(t, "p2"))
}

func TestCancelItem_RefundsNeverExceedGrandTotal(t *testing.T) {
	f := newFixture(t)
	// Min purchase 150: the first cancellation detaches the coupon, so the
	// second item's refund is computed discount-free and must be capped.
	o := placeWalletOrderWithCoupon(t, f, 150)

	first := itemByProduct(t, o, "p1")
	updated, err := f.orders.CancelItem(context.Background(), testUser, o.ID, first.ID, "")
	require.NoError(t, err)

	second := itemByProduct(t, updated, "p2")
	final, err := f.orders.CancelItem(context.Background(), testUser, o.ID, second.ID, "")
	require.NoError(t, err)

	// 180 + min(100, 270-180) = 270, never more than what was charged.
	assert.True(t, final.RefundedTotal().Equal(decimal.NewFromInt(270)))
	require.Len(t, final.Refunds, 2)
	assert.True(t, final.Refunds[1].Amount.Equal(decimal.NewFromInt(90)))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(500)))
}

func TestCancelItem_CODNoRefund(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 200, 10)
	f.addProduct("p2", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1, "p2": 1})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	it := itemByProduct(t, o, "p1")
	updated, err := f.orders.CancelItem(context.Background(), testUser, o.ID, it.ID, "")
	require.NoError(t, err)

	// Nothing was collected, so nothing is refunded.
	assert.Empty(t, updated.Refunds)
	assert.Equal(t, order.StatusPartiallyCancelled, updated.Status)
	assert.Equal(t, 10, f.stock(t, "p1"))
}

func TestCancelItem_CancelledItemConflicts(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 200, 10)
	f.addProduct("p2", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1, "p2": 1})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	it := itemByProduct(t, o, "p1")
	_, err = f.orders.CancelItem(context.Background(), testUser, o.ID, it.ID, "")
	require.NoError(t, err)

	_, err = f.orders.CancelItem(context.Background(), testUser, o.ID, it.ID, "")
	var conflict *order.StateConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestCancelItem_UnknownItem(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	_, err = f.orders.CancelItem(context.Background(), testUser, o.ID, "nope", "")
	assert.ErrorIs(t, err, order.ErrItemNotFound)
}

// --- Fulfilment and returns ---

func deliver(t *testing.T, f *fixture, orderID string, from order.Status) {
	t.Helper()
	steps := map[order.Status][]order.Status{
		order.StatusPending:    {order.StatusProcessing, order.StatusShipped, order.StatusDelivered},
		order.StatusProcessing: {order.StatusShipped, order.StatusDelivered},
	}[from]
	for _, next := range steps {
		_, err := f.orders.AdvanceStatus(context.Background(), orderID, next)
		require.NoError(t, err)
	}
}

func TestAdvanceStatus_DeliveryMarksCODPaid(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 2})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	deliver(t, f, o.ID, order.StatusPending)

	got, err := f.store.Order(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)
	assert.Equal(t, order.PaymentPaid, got.PaymentStatus)
	require.NotNil(t, got.DeliveredAt)
	for _, it := range got.Items {
		assert.Equal(t, order.ItemDelivered, it.Status)
	}
}

func TestAdvanceStatus_SkippingStepsConflicts(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	_, err = f.orders.AdvanceStatus(context.Background(), o.ID, order.StatusDelivered)
	var conflict *order.StateConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestReturnOrder_RequiresDelivery(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	_, err = f.orders.ReturnOrder(context.Background(), testUser, o.ID, "broken")
	var conflict *order.StateConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestResolveReturn_ApproveRefundsAndRestocks(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 2})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)
	deliver(t, f, o.ID, order.StatusPending)
	require.Equal(t, 8, f.stock(t, "p1"))

	pending, err := f.orders.ReturnOrder(context.Background(), testUser, o.ID, "broken")
	require.NoError(t, err)
	assert.Equal(t, order.StatusReturnPending, pending.Status)

	resolved, err := f.orders.ResolveReturn(context.Background(), o.ID, true)
	require.NoError(t, err)

	assert.Equal(t, order.StatusReturned, resolved.Status)
	assert.Equal(t, order.PaymentRefunded, resolved.PaymentStatus)
	require.Len(t, resolved.Refunds, 1)
	// COD was collected at delivery, so the full grand total comes back.
	assert.True(t, resolved.Refunds[0].Amount.Equal(decimal.NewFromInt(200)))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 10, f.stock(t, "p1"))
}

func TestResolveReturn_RejectRestoresDelivered(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 2})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)
	deliver(t, f, o.ID, order.StatusPending)

	_, err = f.orders.ReturnOrder(context.Background(), testUser, o.ID, "broken")
	require.NoError(t, err)

	resolved, err := f.orders.ResolveReturn(context.Background(), o.ID, false)
	require.NoError(t, err)

	assert.Equal(t, order.StatusReturnRejected, resolved.Status)
	assert.Empty(t, resolved.Refunds)
	assert.Equal(t, 8, f.stock(t, "p1"))
	assert.True(t, f.balance(t).IsZero())
	for _, it := range resolved.Items {
		assert.Equal(t, order.ItemDelivered, it.Status)
	}
}

func TestResolveReturn_NotPendingConflicts(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	_, err = f.orders.ResolveReturn(context.Background(), o.ID, true)
	var conflict *order.StateConflictError
	assert.ErrorAs(t, err, &conflict)
}

// --- Reads ---

func TestGetOrder_OwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)
	f.fillCart(t, map[string]int{"p1": 1})

	o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
	require.NoError(t, err)

	got, err := f.orders.GetOrder(context.Background(), testUser, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.orders.GetOrder(context.Background(), "intruder", o.ID)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrders_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 10)

	var placed []string
	for i := range 3 {
		f.nowAt = testTime.Add(time.Duration(i) * time.Hour)
		f.fillCart(t, map[string]int{"p1": 1})
		o, err := f.orders.PlaceOrder(context.Background(), testUser, codAddress())
		require.NoError(t, err)
		placed = append(placed, o.ID)
	}

	orders, err := f.orders.Orders(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, placed[2], orders[0].ID)
	assert.Equal(t, placed[0], orders[2].ID)
}
