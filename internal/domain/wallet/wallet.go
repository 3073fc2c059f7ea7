package wallet

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// TransactionType distinguishes wallet credits from debits.
type TransactionType string

const (
	// Credit adds funds to the wallet.
	Credit TransactionType = "credit"
	// Debit removes funds from the wallet.
	Debit TransactionType = "debit"
)

// ErrInvalidAmount is returned for non-positive credit/debit amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// InsufficientBalanceError indicates a debit larger than the wallet balance.
type InsufficientBalanceError struct {
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return "insufficient wallet balance"
}

// Transaction is one append-only entry in a wallet's history.
type Transaction struct {
	ID          string
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

// Wallet holds a user's balance. The balance always equals the running sum
// of the transaction history and never goes negative.
type Wallet struct {
	UserID  string
	Balance decimal.Decimal
}

// CanDebit reports whether the wallet covers the given amount.
func (w *Wallet) CanDebit(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}
