// Package selector picks which seats to assign for a requested party size.
//
// Selection is first-fit and greedy: it prefers a single row with enough free
// seats and otherwise accumulates free seats row by row. It never mutates its
// input, and the same snapshot and count always produce the same result.
package selector

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kirinyoku/seatbook/internal/domain"
)

var (
	ErrInvalidPartySize  = errors.New("party size must be between 1 and 7")
	ErrInsufficientSeats = errors.New("not enough available seats")
)

// Row is one row of a snapshot with its seats ordered by number.
type Row struct {
	Number int
	Seats  []domain.Seat
}

// Free returns the free seats of the row in seat number order.
func (r Row) Free() []domain.Seat {
	out := make([]domain.Seat, 0, len(r.Seats))
	for _, s := range r.Seats {
		if !s.Booked {
			out = append(out, s)
		}
	}
	return out
}

// GroupByRow builds the row view of a snapshot, rows ascending and seats
// ascending by number within each row.
func GroupByRow(snapshot []domain.Seat) []Row {
	byRow := make(map[int][]domain.Seat)
	for _, s := range snapshot {
		byRow[s.Row] = append(byRow[s.Row], s)
	}

	rows := make([]Row, 0, len(byRow))
	for n, seats := range byRow {
		sort.Slice(seats, func(i, j int) bool {
			if seats[i].Number != seats[j].Number {
				return seats[i].Number < seats[j].Number
			}
			return seats[i].ID < seats[j].ID
		})
		rows = append(rows, Row{Number: n, Seats: seats})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Number < rows[j].Number })

	return rows
}

// Select returns the ids of n seats chosen from snapshot.
//
// Returns:
//   - []int64: exactly n seat ids, in selection order.
//   - error: ErrInvalidPartySize if n is outside 1..7.
//   - error: ErrInsufficientSeats if fewer than n seats are free.
func Select(snapshot []domain.Seat, n int) ([]int64, error) {
	const op = "selector.Select"

	if n < domain.MinPartySize || n > domain.MaxPartySize {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPartySize)
	}

	rows := GroupByRow(snapshot)

	for _, r := range rows {
		free := r.Free()
		if len(free) >= n {
			return ids(free[:n]), nil
		}
	}

	var pool []domain.Seat
	for _, r := range rows {
		pool = append(pool, r.Free()...)
		if len(pool) >= n {
			return ids(pool[:n]), nil
		}
	}

	return nil, fmt.Errorf("%s:%w", op, ErrInsufficientSeats)
}

func ids(seats []domain.Seat) []int64 {
	out := make([]int64, len(seats))
	for i, s := range seats {
		out[i] = s.ID
	}
	return out
}
