package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shoppie-backend/internal/commerce"
	"github.com/xenking/shoppie-backend/internal/domain/order"
)

type addressRequest struct {
	AddressID string `json:"address_id,omitempty"`
	Name      string `json:"name"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Pincode   string `json:"pincode"`
	Phone     string `json:"phone"`
}

func (a addressRequest) toDomain() order.Address {
	return order.Address{
		AddressID: a.AddressID,
		Name:      a.Name,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		Pincode:   a.Pincode,
		Phone:     a.Phone,
	}
}

type orderItemResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Status      string          `json:"status"`
}

type refundResponse struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	Items         []orderItemResponse `json:"items"`
	Address       order.Address       `json:"address"`
	SubTotal      decimal.Decimal     `json:"subtotal"`
	Discount      decimal.Decimal     `json:"discount"`
	GrandTotal    decimal.Decimal     `json:"grand_total"`
	CouponCode    string              `json:"coupon_code,omitempty"`
	PaymentMethod string              `json:"payment_method"`
	PaymentStatus string              `json:"payment_status"`
	Refunds       []refundResponse    `json:"refunds,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal,
			Status:      string(it.Status),
		})
	}

	var refunds []refundResponse
	for _, rf := range o.Refunds {
		refunds = append(refunds, refundResponse{
			ID:        rf.ID,
			Amount:    rf.Amount,
			Status:    string(rf.Status),
			CreatedAt: rf.CreatedAt,
		})
	}

	return orderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		Items:         items,
		Address:       o.Address,
		SubTotal:      o.SubTotal,
		Discount:      o.Discount,
		GrandTotal:    o.GrandTotal,
		CouponCode:    o.CouponCode,
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		Refunds:       refunds,
		CreatedAt:     o.CreatedAt,
	}
}

type placeOrderRequest struct {
	PaymentMethod string         `json:"payment_method"`
	Address       addressRequest `json:"address"`
}

// PlaceOrder places a cod or wallet order from the user's cart. Gateway
// orders go through CreateCheckout and ConfirmPayment instead.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	method := order.PaymentMethod(req.PaymentMethod)
	if method != order.PaymentCOD && method != order.PaymentWallet {
		writeError(w, http.StatusBadRequest, "invalid_request", "payment_method must be cod or wallet")
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), userID(r.Context()), commerce.PlaceOrderInput{
		Method:  method,
		Address: req.Address.toDomain(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

type checkoutResponse struct {
	IntentID string          `json:"intent_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CreateCheckout opens a payment intent for the cart's current total.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	intent, err := h.orders.CreateCheckout(r.Context(), userID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{
		IntentID: intent.ID,
		Amount:   intent.Amount,
		Currency: intent.Currency,
	})
}

type confirmPaymentRequest struct {
	IntentID  string          `json:"intent_id"`
	PaymentID string          `json:"payment_id"`
	Signature string          `json:"signature"`
	Amount    decimal.Decimal `json:"amount"`
	Address   addressRequest  `json:"address"`
}

// ConfirmPayment verifies a gateway callback and places the prepaid order.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.IntentID == "" || req.PaymentID == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "intent_id, payment_id and signature are required")
		return
	}

	o, err := h.orders.ConfirmPayment(r.Context(), userID(r.Context()), commerce.ConfirmPaymentInput{
		IntentID:  req.IntentID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    req.Amount,
		Address:   req.Address.toDomain(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// ListOrders returns the user's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.Orders(r.Context(), userID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder returns one of the user's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), userID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// decodeReason parses an optional {"reason": ...} body. An empty body is
// treated as no reason given.
func decodeReason(r *http.Request) (string, error) {
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return req.Reason, nil
}

// CancelOrder cancels the whole order and initiates any due refund.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	o, err := h.orders.CancelOrder(r.Context(), userID(r.Context()), chi.URLParam(r, "id"), reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// CancelItem cancels a single order item with a prorated refund.
func (h *Handler) CancelItem(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	o, err := h.orders.CancelItem(r.Context(), userID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ReturnOrder requests a return for a delivered order.
func (h *Handler) ReturnOrder(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	o, err := h.orders.ReturnOrder(r.Context(), userID(r.Context()), chi.URLParam(r, "id"), reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type advanceStatusRequest struct {
	Status string `json:"status"`
}

// AdvanceOrderStatus moves an order along the fulfillment path.
func (h *Handler) AdvanceOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req advanceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	o, err := h.orders.AdvanceStatus(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type resolveReturnRequest struct {
	Approve bool `json:"approve"`
}

// ResolveReturn approves or rejects a pending return.
func (h *Handler) ResolveReturn(w http.ResponseWriter, r *http.Request) {
	var req resolveReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	o, err := h.orders.ResolveReturn(r.Context(), chi.URLParam(r, "id"), req.Approve)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
