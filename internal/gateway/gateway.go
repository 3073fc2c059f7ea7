// Package gateway defines the payment gateway contract consumed by the order
// lifecycle and a minimal HTTP client implementation.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrRefundRejected is returned when the gateway explicitly declines a
// refund. Transport failures are returned as wrapped errors instead.
var ErrRefundRejected = errors.New("gateway rejected refund")

// Intent is a created payment intent awaiting client-side authorization.
type Intent struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
}

// RefundResult is the gateway's answer to a refund request.
type RefundResult struct {
	RefundID string
}

// Client is the external payment capability. Refund may fail transiently;
// callers record the failure and retry later rather than rolling back.
type Client interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency, reference string) (*Intent, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*RefundResult, error)
}

// Signature computes the HMAC-SHA256 hex signature the gateway attaches to
// payment callbacks, over "intentID|paymentID".
func Signature(secret []byte, intentID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback signature in constant time.
func VerifySignature(secret []byte, intentID, paymentID, signature string) bool {
	want := Signature(secret, intentID, paymentID)
	return hmac.Equal([]byte(want), []byte(signature))
}
