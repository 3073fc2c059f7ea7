package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type walletResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type walletTransactionResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// GetWallet returns the user's wallet balance.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wl, err := h.wallets.Get(r.Context(), userID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{Balance: wl.Balance})
}

// ListWalletTransactions returns the wallet ledger, newest first.
func (h *Handler) ListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.wallets.Transactions(r.Context(), userID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]walletTransactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, walletTransactionResponse{
			ID:          tx.ID,
			Type:        string(tx.Type),
			Amount:      tx.Amount,
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type topUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TopUpWallet credits the wallet with the given amount.
func (h *Handler) TopUpWallet(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	uid := userID(r.Context())
	if err := h.wallets.TopUp(r.Context(), uid, req.Amount, "wallet top-up"); err != nil {
		writeDomainError(w, r, err)
		return
	}

	wl, err := h.wallets.Get(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{Balance: wl.Balance})
}
