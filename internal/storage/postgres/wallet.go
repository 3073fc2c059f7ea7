package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/shoppie-backend/internal/domain/wallet"
)

const (
	ensureWalletSQL = `INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`

	getWalletSQL = `SELECT user_id, balance FROM wallets WHERE user_id = $1`

	getWalletForUpdateSQL = getWalletSQL + ` FOR UPDATE`

	creditWalletSQL = `UPDATE wallets SET balance = balance + $2 WHERE user_id = $1`

	debitWalletSQL = `UPDATE wallets SET balance = balance - $2
		WHERE user_id = $1 AND balance >= $2`

	insertTransactionSQL = `INSERT INTO wallet_transactions (id, user_id, type, amount, description)
		VALUES ($1, $2, $3, $4, $5)`

	listTransactionsSQL = `SELECT id, type, amount, description, created_at
		FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC`
)

// Wallet returns the user's wallet, creating an empty one on first access.
func (q queries) Wallet(ctx context.Context, userID string) (*wallet.Wallet, error) {
	return q.getWallet(ctx, getWalletSQL, userID)
}

// WalletForUpdate locks and returns the user's wallet, creating an empty
// one on first access.
func (q queries) WalletForUpdate(ctx context.Context, userID string) (*wallet.Wallet, error) {
	return q.getWallet(ctx, getWalletForUpdateSQL, userID)
}

func (q queries) getWallet(ctx context.Context, sql, userID string) (*wallet.Wallet, error) {
	if _, err := q.db.Exec(ctx, ensureWalletSQL, userID); err != nil {
		return nil, fmt.Errorf("ensuring wallet for user %q: %w", userID, err)
	}

	var w wallet.Wallet
	if err := q.db.QueryRow(ctx, sql, userID).Scan(&w.UserID, &w.Balance); err != nil {
		return nil, fmt.Errorf("getting wallet for user %q: %w", userID, err)
	}
	return &w, nil
}

// CreditWallet adds funds and appends a credit entry to the history.
func (q queries) CreditWallet(ctx context.Context, userID string, amount decimal.Decimal, description string) error {
	if _, err := q.db.Exec(ctx, ensureWalletSQL, userID); err != nil {
		return fmt.Errorf("ensuring wallet for user %q: %w", userID, err)
	}
	if _, err := q.db.Exec(ctx, creditWalletSQL, userID, amount); err != nil {
		return fmt.Errorf("crediting wallet for user %q: %w", userID, err)
	}
	return q.appendTransaction(ctx, userID, wallet.Credit, amount, description)
}

// DebitWallet removes funds and appends a debit entry. The balance guard
// rides on the UPDATE so the ledger can never go negative.
func (q queries) DebitWallet(ctx context.Context, userID string, amount decimal.Decimal, description string) error {
	tag, err := q.db.Exec(ctx, debitWalletSQL, userID, amount)
	if err != nil {
		return fmt.Errorf("debiting wallet for user %q: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return &wallet.InsufficientBalanceError{Required: amount}
	}
	return q.appendTransaction(ctx, userID, wallet.Debit, amount, description)
}

func (q queries) appendTransaction(ctx context.Context, userID string, typ wallet.TransactionType, amount decimal.Decimal, description string) error {
	_, err := q.db.Exec(ctx, insertTransactionSQL, uuid.New().String(), userID, string(typ), amount, description)
	if err != nil {
		return fmt.Errorf("appending wallet transaction for user %q: %w", userID, err)
	}
	return nil
}

// WalletTransactions returns the wallet's history, newest first.
func (q queries) WalletTransactions(ctx context.Context, userID string) ([]wallet.Transaction, error) {
	rows, err := q.db.Query(ctx, listTransactionsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanTransaction)
}

func scanTransaction(row pgx.CollectableRow) (wallet.Transaction, error) {
	var (
		t   wallet.Transaction
		typ string
	)
	err := row.Scan(&t.ID, &typ, &t.Amount, &t.Description, &t.CreatedAt)
	t.Type = wallet.TransactionType(typ)
	return t, err
}
