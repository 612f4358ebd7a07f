// Package wallet manages prepaid balances: top-ups, balance reads and
// payment history. Debits happen inside the allocation and booking
// units of work, not here.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
	redisrepo "github.com/parkgate/parkgate/internal/repository/redis"
)

var (
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrWalletNotFound = errors.New("wallet not found")
)

type Service struct {
	store  repository.Store
	pubsub *redisrepo.LifecyclePubSub
}

func New(store repository.Store, pubsub *redisrepo.LifecyclePubSub) *Service {
	return &Service{store: store, pubsub: pubsub}
}

// TopUp credits amount to the account's wallet, creating it on first
// use. Returns the new balance.
func (s *Service) TopUp(ctx context.Context, accountID, amount int64) (int64, error) {
	const op = "service.wallet.TopUp"

	if amount <= 0 {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidAmount)
	}

	balance, err := s.store.Wallets().Credit(ctx, accountID, amount)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.store.Wallets().RecordPayment(ctx, &domain.Payment{
		AccountID:   accountID,
		Amount:      amount,
		Method:      "topup",
		Status:      "completed",
		Description: "wallet top-up",
	}); err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if s.pubsub != nil {
		_ = s.pubsub.Publish(ctx, domain.LifecycleEvent{
			Type:      domain.EventWalletTopUp,
			AccountID: accountID,
			Amount:    amount,
		})
	}

	return balance, nil
}

// Balance returns the wallet for an account. An account that never
// topped up has no wallet row; that surfaces as ErrWalletNotFound.
func (s *Service) Balance(ctx context.Context, accountID int64) (*domain.Wallet, error) {
	const op = "service.wallet.Balance"

	w, err := s.store.Wallets().Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrWalletNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return w, nil
}

// History returns the account's most recent payments, newest first.
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]domain.Payment, error) {
	const op = "service.wallet.History"

	out, err := s.store.Wallets().Payments(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
