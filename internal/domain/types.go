package domain

import (
	"time"

	"github.com/google/uuid"
)

// Party size bounds for a single booking.
const (
	MinPartySize = 1
	MaxPartySize = 7
)

type Seat struct {
	ID     int64 `json:"id"`
	Row    int   `json:"row_number"`
	Number int   `json:"seat_number"`
	Booked bool  `json:"is_booked"`
}

// Layout describes the fixed coach the inventory is seeded from.
// Seats fill rows in order, so the last row may be shorter.
type Layout struct {
	TotalSeats  int
	SeatsPerRow int
}

// DefaultLayout is an 80 seat coach with 7 seats per row.
var DefaultLayout = Layout{TotalSeats: 80, SeatsPerRow: 7}

// Seats returns the seats described by the layout, all free.
func (l Layout) Seats() []Seat {
	if l.TotalSeats <= 0 || l.SeatsPerRow <= 0 {
		return nil
	}

	seats := make([]Seat, 0, l.TotalSeats)
	for i := 0; i < l.TotalSeats; i++ {
		seats = append(seats, Seat{
			ID:     int64(i + 1),
			Row:    i/l.SeatsPerRow + 1,
			Number: i%l.SeatsPerRow + 1,
		})
	}

	return seats
}

type Booking struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	SeatIDs   []int64   `json:"seat_ids"`
}

type BookingDetails struct {
	Booking
	Seats []Seat `json:"seats"`
}

type SeatCounts struct {
	Free   int64 `json:"free"`
	Booked int64 `json:"booked"`
	Total  int64 `json:"total"`
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
