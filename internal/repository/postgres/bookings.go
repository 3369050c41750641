package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/seatbook/internal/domain"
	"github.com/kirinyoku/seatbook/internal/repository"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create records a booking for ownerID holding seatIDs, in the given order.
//
// Returns:
//   - *domain.Booking: the booking with its generated id and timestamp.
//   - error: repository.ErrInvalidRequest if seatIDs is empty or longer than 7.
//   - error: repository.ErrConflict if a seat already belongs to a booking.
//   - error: repository.ErrUnknownSeat if a seat does not exist.
func (r *BookingRepo) Create(ctx context.Context, ownerID int64, seatIDs []int64) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Create"

	if err := repository.ValidateSeatIDs(seatIDs); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	b := domain.Booking{
		ID:      uuid.New(),
		OwnerID: ownerID,
		SeatIDs: append([]int64(nil), seatIDs...),
	}

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		if err := db.QueryRow(ctx,
			`INSERT INTO bookings (id, user_id)
			 VALUES ($1, $2)
			 RETURNING booking_time`,
			b.ID, b.OwnerID,
		).Scan(&b.CreatedAt); err != nil {
			return translateDBErr(err)
		}

		batch := &pgx.Batch{}
		for i, sid := range b.SeatIDs {
			batch.Queue(
				`INSERT INTO booking_seats (booking_id, seat_id, position)
				 VALUES ($1, $2, $3)`,
				b.ID, sid, i,
			)
		}

		return translateDBErr(db.SendBatch(ctx, batch).Close())
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	b.CreatedAt = b.CreatedAt.UTC()

	return &b, nil
}

// Get returns a booking with its seat ids.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	b, err := r.get(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// GetForUpdate is Get with the booking row locked until the enclosing unit
// of work ends. A booking deleted by a concurrent unit is reported as
// repository.ErrNotFound once that unit commits.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetForUpdate"

	b, err := r.get(ctx, id, true)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

func (r *BookingRepo) get(ctx context.Context, id uuid.UUID, lock bool) (*domain.Booking, error) {
	db := r.handle()

	q := `SELECT id, user_id, booking_time FROM bookings WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}

	var b domain.Booking
	if err := db.QueryRow(ctx, q, id).Scan(&b.ID, &b.OwnerID, &b.CreatedAt); err != nil {
		return nil, translateDBErr(err)
	}
	b.CreatedAt = b.CreatedAt.UTC()

	rows, err := db.Query(ctx,
		`SELECT seat_id
		 FROM booking_seats
		 WHERE booking_id = $1
		 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, translateDBErr(err)
	}

	defer rows.Close()

	for rows.Next() {
		var sid int64
		if err := rows.Scan(&sid); err != nil {
			return nil, translateDBErr(err)
		}
		b.SeatIDs = append(b.SeatIDs, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, translateDBErr(err)
	}

	return &b, nil
}

// ListByOwner returns the owner's bookings, most recent first.
func (r *BookingRepo) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListByOwner"

	rows, err := r.handle().Query(ctx,
		`SELECT b.id, b.user_id, b.booking_time,
		        COALESCE(array_agg(bs.seat_id ORDER BY bs.position)
		                 FILTER (WHERE bs.seat_id IS NOT NULL), '{}')
		 FROM bookings b
		 LEFT JOIN booking_seats bs ON bs.booking_id = b.id
		 WHERE b.user_id = $1
		 GROUP BY b.id, b.user_id, b.booking_time
		 ORDER BY b.booking_time DESC, b.id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.CreatedAt, &b.SeatIDs); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		b.CreatedAt = b.CreatedAt.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// Delete removes a booking and its seat links.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
//   - error: repository.ErrForbidden if requestedBy does not own it.
func (r *BookingRepo) Delete(ctx context.Context, id uuid.UUID, requestedBy int64) error {
	const op = "postgres.BookingRepo.Delete"

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		var ownerID int64
		if err := db.QueryRow(ctx,
			`SELECT user_id FROM bookings WHERE id = $1 FOR UPDATE`,
			id,
		).Scan(&ownerID); err != nil {
			return translateDBErr(err)
		}

		if ownerID != requestedBy {
			return repository.ErrForbidden
		}

		if _, err := db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
			return translateDBErr(err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
