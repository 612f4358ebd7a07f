package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkgate/parkgate/internal/repository"
)

// DB is the querying surface shared by the pool and a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store is the postgres adapter behind repository.Store. Spot claims
// and wallet debits are single conditional statements; multi-entity
// flows run through Atomic at Serializable isolation.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Spots() repository.Spots                 { return &SpotRepo{pool: s.pool} }
func (s *Store) Sessions() repository.Sessions           { return &SessionRepo{pool: s.pool} }
func (s *Store) Reservations() repository.Reservations   { return &ReservationRepo{pool: s.pool} }
func (s *Store) Wallets() repository.Wallets             { return &WalletRepo{pool: s.pool} }
func (s *Store) Vehicles() repository.Vehicles           { return &VehicleRepo{pool: s.pool} }
func (s *Store) Subscriptions() repository.Subscriptions { return &SubscriptionRepo{pool: s.pool} }
func (s *Store) Facilities() repository.Facilities       { return &FacilityRepo{pool: s.pool} }
func (s *Store) Audit() repository.Audit                 { return &AuditRepo{pool: s.pool} }

// RunTx runs fn inside a transaction, Serializable unless overridden.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts = *opts
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// Atomic implements repository.Store. After-commit hooks collect inside
// the transaction and run only once it has committed, so cache
// invalidation and event publishes never observe rolled-back state.
func (s *Store) Atomic(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx, after func(repository.AfterCommit)) error,
) error {
	var hooks []repository.AfterCommit

	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		return fn(ctx, &txStore{db: tx}, func(h repository.AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

// txStore exposes the transactional slice of the store, every repo
// bound to the same open transaction.
type txStore struct {
	db DB
}

func (t *txStore) Spots() repository.Spots               { return &SpotRepo{db: t.db} }
func (t *txStore) Sessions() repository.Sessions         { return &SessionRepo{db: t.db} }
func (t *txStore) Reservations() repository.Reservations { return &ReservationRepo{db: t.db} }
func (t *txStore) Wallets() repository.Wallets           { return &WalletRepo{db: t.db} }
