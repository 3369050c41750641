package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kirinyoku/seatbook/internal/domain"
)

// SeatRepository is the seat inventory.
type SeatRepository interface {
	// List returns every seat ordered by row, then number.
	List(ctx context.Context) ([]domain.Seat, error)
	// LockByIDs returns the listed seats that exist, locking them for the
	// rest of the enclosing unit of work.
	LockByIDs(ctx context.Context, ids []int64) ([]domain.Seat, error)
	// MarkBooked books all listed seats or none. ErrConflict if any seat is
	// already booked or does not exist.
	MarkBooked(ctx context.Context, ids []int64) error
	// MarkFree releases the listed seats. ErrUnknownSeat if any seat does not
	// exist; freeing a free seat is a no-op.
	MarkFree(ctx context.Context, ids []int64) error
	// Seed creates the seats of layout that do not exist yet.
	Seed(ctx context.Context, layout domain.Layout) error
}

// BookingRepository is the booking ledger.
type BookingRepository interface {
	Create(ctx context.Context, ownerID int64, seatIDs []int64) (*domain.Booking, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Booking, error)
	Delete(ctx context.Context, id uuid.UUID, requestedBy int64) error
}

type UserRepository interface {
	Create(ctx context.Context, username, email, passwordHash string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Seats() SeatRepository
	Bookings() BookingRepository
}

// Store is a backing store for seats, bookings and users. Repositories
// returned directly from the Store run outside any unit of work.
type Store interface {
	Tx
	Users() UserRepository
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ValidateSeatIDs checks the ledger's size constraint on a booking.
func ValidateSeatIDs(seatIDs []int64) error {
	if len(seatIDs) < domain.MinPartySize || len(seatIDs) > domain.MaxPartySize {
		return ErrInvalidRequest
	}
	return nil
}
