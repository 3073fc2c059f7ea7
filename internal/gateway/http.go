package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HTTPClient talks to a payment gateway over its REST API using basic
// key/secret authentication.
type HTTPClient struct {
	baseURL string
	keyID   string
	secret  string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a gateway client for the given API endpoint and
// credentials.
func NewHTTPClient(baseURL, keyID, secret string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type intentRequest struct {
	// Amount is in minor units, as gateways commonly require.
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type intentResponse struct {
	ID string `json:"id"`
}

// CreateIntent registers a payment intent for the given amount.
func (c *HTTPClient) CreateIntent(ctx context.Context, amount decimal.Decimal, currency, reference string) (*Intent, error) {
	req := intentRequest{
		Amount:    amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:  currency,
		Reference: reference,
	}

	var resp intentResponse
	if err := c.post(ctx, "/v1/intents", req, &resp); err != nil {
		return nil, errors.Wrap(err, "create intent")
	}

	return &Intent{ID: resp.ID, Amount: amount, Currency: currency}, nil
}

type refundRequest struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	// IdempotencyKey lets the gateway dedupe retried refund attempts.
	IdempotencyKey string `json:"idempotency_key"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund asks the gateway to refund part of a captured payment.
func (c *HTTPClient) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*RefundResult, error) {
	req := refundRequest{
		PaymentID:      paymentID,
		Amount:         amount.Mul(decimal.NewFromInt(100)).IntPart(),
		IdempotencyKey: uuid.New().String(),
	}

	var resp refundResponse
	if err := c.post(ctx, "/v1/refunds", req, &resp); err != nil {
		return nil, errors.Wrap(err, "refund")
	}
	if resp.Status != "processed" {
		return nil, ErrRefundRejected
	}

	return &RefundResult{RefundID: resp.ID}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return errors.Errorf("gateway returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
