package commerce_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shoppie-backend/internal/commerce"
	"github.com/xenking/shoppie-backend/internal/domain/wallet"
)

func TestWallet_StartsEmpty(t *testing.T) {
	f := newFixture(t)
	wallets := commerce.NewWalletService(f.store)

	w, err := wallets.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	txs, err := wallets.Transactions(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWallet_TopUp(t *testing.T) {
	f := newFixture(t)
	wallets := commerce.NewWalletService(f.store)

	err := wallets.TopUp(context.Background(), testUser, decimal.NewFromFloat(99.999), "top-up")
	require.NoError(t, err)

	w, err := wallets.Get(context.Background(), testUser)
	require.NoError(t, err)
	// Amounts are rounded to cents on the way in.
	assert.True(t, w.Balance.Equal(decimal.NewFromFloat(100.00)))

	txs, err := wallets.Transactions(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, wallet.Credit, txs[0].Type)
	assert.Equal(t, "top-up", txs[0].Description)
}

func TestWallet_TopUpRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	wallets := commerce.NewWalletService(f.store)

	err := wallets.TopUp(context.Background(), testUser, decimal.Zero, "zero")
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)

	err = wallets.TopUp(context.Background(), testUser, decimal.NewFromInt(-5), "negative")
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)

	txs, err := wallets.Transactions(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, txs)
}
