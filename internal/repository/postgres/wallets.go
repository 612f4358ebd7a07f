package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
)

// WalletRepo maintains prepaid balances. Debit is a single conditional
// UPDATE guarded by balance >= amount, so a balance can never go
// negative and a failed debit has no side effects.
type WalletRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *WalletRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *WalletRepo) Get(ctx context.Context, accountID int64) (*domain.Wallet, error) {
	const op = "postgres.WalletRepo.Get"

	db := r.handle()

	var w domain.Wallet
	err := db.QueryRow(ctx,
		`SELECT account_id, balance, currency, updated_at
		   FROM wallets WHERE account_id = $1`,
		accountID,
	).Scan(&w.AccountID, &w.Balance, &w.Currency, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &w, nil
}

func (r *WalletRepo) Credit(ctx context.Context, accountID int64, amount int64) (int64, error) {
	const op = "postgres.WalletRepo.Credit"

	db := r.handle()

	// First top-up creates the wallet row.
	var balance int64
	err := db.QueryRow(ctx,
		`INSERT INTO wallets (account_id, balance)
		 VALUES ($1, $2)
		 ON CONFLICT (account_id)
		 DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
		 RETURNING balance`,
		accountID, amount,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return balance, nil
}

func (r *WalletRepo) Debit(ctx context.Context, accountID int64, amount int64) (int64, error) {
	const op = "postgres.WalletRepo.Debit"

	db := r.handle()

	var balance int64
	err := db.QueryRow(ctx,
		`UPDATE wallets
		    SET balance = balance - $2, updated_at = now()
		  WHERE account_id = $1 AND balance >= $2
		  RETURNING balance`,
		accountID, amount,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	// Zero rows: either no wallet at all or not enough balance.
	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM wallets WHERE account_id = $1)`,
		accountID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if !exists {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return 0, fmt.Errorf("%s:%w", op, repository.ErrInsufficientFunds)
}

func (r *WalletRepo) RecordPayment(ctx context.Context, p *domain.Payment) error {
	const op = "postgres.WalletRepo.RecordPayment"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO payments (account_id, session_id, amount, method, status, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.AccountID, nullableID(p.SessionID), p.Amount, p.Method, p.Status, p.Description,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *WalletRepo) Payments(ctx context.Context, accountID int64, limit int) ([]domain.Payment, error) {
	const op = "postgres.WalletRepo.Payments"

	db := r.handle()

	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(ctx,
		`SELECT id, account_id, COALESCE(session_id, 0), amount, method, status, description, created_at
		   FROM payments
		  WHERE account_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.AccountID, &p.SessionID, &p.Amount,
			&p.Method, &p.Status, &p.Description, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
