package commerce

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/shoppie-backend/internal/domain/wallet"
)

// WalletService exposes the wallet ledger: balance reads, transaction
// history, and top-up credits. Order-driven credits and debits go through
// the order lifecycle, not through this service.
type WalletService struct {
	store Store
}

// NewWalletService creates a WalletService backed by the given store.
func NewWalletService(store Store) *WalletService {
	return &WalletService{store: store}
}

// Get returns the user's wallet.
func (s *WalletService) Get(ctx context.Context, userID string) (*wallet.Wallet, error) {
	return s.store.Wallet(ctx, userID)
}

// Transactions returns the wallet's append-only history, newest first.
func (s *WalletService) Transactions(ctx context.Context, userID string) ([]wallet.Transaction, error) {
	return s.store.WalletTransactions(ctx, userID)
}

// TopUp credits the wallet with the given amount.
func (s *WalletService) TopUp(ctx context.Context, userID string, amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return wallet.ErrInvalidAmount
	}
	return s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.WalletForUpdate(ctx, userID); err != nil {
			return err
		}
		return tx.CreditWallet(ctx, userID, amount.Round(2), description)
	})
}
