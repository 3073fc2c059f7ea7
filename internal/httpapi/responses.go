package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shoppie-backend/internal/commerce"
	"github.com/xenking/shoppie-backend/internal/domain/cart"
	"github.com/xenking/shoppie-backend/internal/domain/coupon"
	"github.com/xenking/shoppie-backend/internal/domain/order"
	"github.com/xenking/shoppie-backend/internal/domain/product"
	"github.com/xenking/shoppie-backend/internal/domain/wallet"
	"github.com/xenking/shoppie-backend/internal/gateway"
)

// errorResponse is the uniform error body. Code is a stable machine-readable
// identifier; message is for humans and may change.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps a domain error onto an HTTP status and stable error
// code. Every handler funnels its service errors through here so the mapping
// lives in exactly one place.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		outOfStock   *product.OutOfStockError
		minPurchase  *coupon.MinPurchaseError
		perUserLimit *coupon.PerUserLimitError
		insufficient *wallet.InsufficientBalanceError
		conflict     *order.StateConflictError
	)

	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrItemNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusUnprocessableEntity, "invalid_coupon", err.Error())
	case errors.Is(err, coupon.ErrExpired):
		writeError(w, http.StatusUnprocessableEntity, "coupon_expired", err.Error())
	case errors.Is(err, coupon.ErrUsageLimitReached):
		writeError(w, http.StatusUnprocessableEntity, "coupon_usage_limit", err.Error())
	case errors.As(err, &minPurchase):
		writeError(w, http.StatusUnprocessableEntity, "coupon_min_purchase", err.Error())
	case errors.As(err, &perUserLimit):
		writeError(w, http.StatusUnprocessableEntity, "coupon_per_user_limit", err.Error())

	case errors.Is(err, cart.ErrEmpty):
		writeError(w, http.StatusUnprocessableEntity, "cart_empty", err.Error())
	case errors.Is(err, cart.ErrCouponAlreadyApplied):
		writeError(w, http.StatusConflict, "coupon_already_applied", err.Error())
	case errors.Is(err, cart.ErrNoCouponApplied):
		writeError(w, http.StatusConflict, "no_coupon_applied", err.Error())

	case errors.As(err, &outOfStock):
		writeError(w, http.StatusConflict, "out_of_stock", err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "state_conflict", err.Error())
	case errors.Is(err, order.ErrDuplicatePayment):
		writeError(w, http.StatusConflict, "duplicate_payment", err.Error())

	case errors.As(err, &insufficient):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_balance", err.Error())
	case errors.Is(err, wallet.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())

	case errors.Is(err, commerce.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "invalid_signature", err.Error())
	case errors.Is(err, commerce.ErrAmountMismatch):
		writeError(w, http.StatusBadRequest, "amount_mismatch", err.Error())

	case errors.Is(err, gateway.ErrRefundRejected):
		writeError(w, http.StatusBadGateway, "gateway_error", err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
