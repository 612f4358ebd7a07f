package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkgate/parkgate/internal/repository/memory"
)

func TestTopUpCreatesWallet(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.NewStore(), nil)

	balance, err := svc.TopUp(ctx, 42, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	balance, err = svc.TopUp(ctx, 42, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), balance)

	history, err := svc.History(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "topup", history[0].Method)
	// newest first
	assert.Equal(t, int64(250), history[0].Amount)
}

func TestTopUpRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.NewStore(), nil)

	_, err := svc.TopUp(ctx, 42, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.TopUp(ctx, 42, -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBalanceUnknownAccount(t *testing.T) {
	svc := New(memory.NewStore(), nil)

	_, err := svc.Balance(context.Background(), 99)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}
