package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/seatbook/internal/domain"
	"github.com/kirinyoku/seatbook/internal/repository"
)

type SeatRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SeatRepo) With(db DB) *SeatRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SeatRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// List returns every seat ordered by row, then seat number.
func (r *SeatRepo) List(ctx context.Context) ([]domain.Seat, error) {
	const op = "postgres.SeatRepo.List"

	rows, err := r.handle().Query(ctx,
		`SELECT id, row_number, seat_number, is_booked
		 FROM seats
		 ORDER BY row_number, seat_number`,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	seats, err := scanSeats(rows)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return seats, nil
}

// LockByIDs returns the existing seats among ids and, inside a unit of work,
// holds their row locks until it ends. Rows are locked in id order so two
// units never wait on each other in a cycle.
func (r *SeatRepo) LockByIDs(ctx context.Context, ids []int64) ([]domain.Seat, error) {
	const op = "postgres.SeatRepo.LockByIDs"

	rows, err := r.handle().Query(ctx,
		`SELECT id, row_number, seat_number, is_booked
		 FROM seats
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		uniqueIDs(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	seats, err := scanSeats(rows)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return seats, nil
}

// MarkBooked flips every listed seat to booked in a single statement, or none
// of them.
//
// Returns:
//   - error: repository.ErrConflict if any seat is already booked or unknown.
func (r *SeatRepo) MarkBooked(ctx context.Context, ids []int64) error {
	const op = "postgres.SeatRepo.MarkBooked"

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	tag, err := r.handle().Exec(ctx,
		`UPDATE seats
		 SET is_booked = TRUE
		 WHERE id = ANY($1)
		   AND (SELECT count(*) FROM seats WHERE id = ANY($1) AND NOT is_booked) = cardinality($1::bigint[])`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

// MarkFree releases the listed seats. Already free seats stay free.
//
// Returns:
//   - error: repository.ErrUnknownSeat if any seat does not exist.
func (r *SeatRepo) MarkFree(ctx context.Context, ids []int64) error {
	const op = "postgres.SeatRepo.MarkFree"

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		var known int
		if err := db.QueryRow(ctx,
			`SELECT count(*) FROM seats WHERE id = ANY($1)`,
			ids,
		).Scan(&known); err != nil {
			return translateDBErr(err)
		}

		if known != len(ids) {
			return repository.ErrUnknownSeat
		}

		_, err := db.Exec(ctx,
			`UPDATE seats SET is_booked = FALSE WHERE id = ANY($1) AND is_booked`,
			ids,
		)
		return translateDBErr(err)
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Seed inserts the seats of layout that are missing. Existing seats, and
// their booked state, are left untouched.
func (r *SeatRepo) Seed(ctx context.Context, layout domain.Layout) error {
	const op = "postgres.SeatRepo.Seed"

	seats := layout.Seats()
	if len(seats) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range seats {
		batch.Queue(
			`INSERT INTO seats (id, row_number, seat_number)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			s.ID, s.Row, s.Number,
		)
	}

	if err := r.handle().SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func scanSeats(rows pgx.Rows) ([]domain.Seat, error) {
	defer rows.Close()

	var out []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.Row, &s.Number, &s.Booked); err != nil {
			return nil, translateDBErr(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, translateDBErr(err)
	}

	return out, nil
}
