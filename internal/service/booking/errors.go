package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidPartySize   = errors.New("party size must be between 1 and 7 seats")
	ErrSeatConflict       = errors.New("some selected seats are already booked")
	ErrInsufficientSeats  = errors.New("not enough free seats")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrForbidden          = errors.New("booking belongs to another user")
	ErrUnknownSeat        = errors.New("unknown seat")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrRateLimited        = errors.New("too many booking attempts")
)

// SeatsUnavailableError lists the seats that were already booked when the
// unit of work locked them.
type SeatsUnavailableError struct {
	SeatIDs []int64
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("seats already booked: %v", e.SeatIDs)
}

func (e *SeatsUnavailableError) Unwrap() error { return ErrSeatConflict }

type UnknownSeatsError struct {
	SeatIDs []int64
}

func (e *UnknownSeatsError) Error() string {
	return fmt.Sprintf("seats not found: %v", e.SeatIDs)
}

func (e *UnknownSeatsError) Unwrap() error { return ErrUnknownSeat }

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
