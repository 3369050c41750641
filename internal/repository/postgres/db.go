package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/seatbook/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Config struct {
	// IsoLevel of units of work. Read committed plus explicit row locks
	// lets a blocked unit observe the winner's commit instead of failing
	// with a serialization error.
	IsoLevel pgx.TxIsoLevel
}

type Store struct {
	pool *pgxpool.Pool
	cfg  Config
}

func NewStore(pool *pgxpool.Pool, cfg Config) *Store {
	if cfg.IsoLevel == "" {
		cfg.IsoLevel = pgx.ReadCommitted
	}

	return &Store{
		pool: pool,
		cfg:  cfg,
	}
}

// RunTx runs fn as one unit of work with the store's isolation level.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.RunTxWithOpts(ctx, nil, func(ctx context.Context, db DB) error {
		return fn(ctx, &txRepos{
			seats:    s.seats().With(db),
			bookings: s.bookings().With(db),
		})
	})
}

func (s *Store) RunTxWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   s.cfg.IsoLevel,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return fmt.Errorf("begin: %w", translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateDBErr(err))
	}

	return nil
}

func (s *Store) seats() *SeatRepo       { return &SeatRepo{pool: s.pool} }
func (s *Store) bookings() *BookingRepo { return &BookingRepo{pool: s.pool} }

func (s *Store) Seats() repository.SeatRepository       { return s.seats() }
func (s *Store) Bookings() repository.BookingRepository { return s.bookings() }
func (s *Store) Users() repository.UserRepository       { return &UserRepo{pool: s.pool} }

type txRepos struct {
	seats    *SeatRepo
	bookings *BookingRepo
}

func (t *txRepos) Seats() repository.SeatRepository       { return t.seats }
func (t *txRepos) Bookings() repository.BookingRepository { return t.bookings }

// inTx runs core on the bound handle, or in a fresh transaction when the
// repository is not bound to one.
func inTx(ctx context.Context, pool *pgxpool.Pool, bound DB, core func(db DB) error) error {
	if bound != nil {
		return core(bound)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return translateDBErr(err)
	}

	defer tx.Rollback(ctx)

	if err := core(tx); err != nil {
		return err
	}

	return translateDBErr(tx.Commit(ctx))
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
