// Package memory is a single-node, in-process implementation of the
// repository interfaces.
//
// Units of work are serialized by a one-slot semaphore and run against a
// private copy of the state that is published on success, so readers only
// ever see whole units.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/seatbook/internal/domain"
	"github.com/kirinyoku/seatbook/internal/repository"
)

type bookingRecord struct {
	booking domain.Booking
	seq     int64
}

type state struct {
	seats    map[int64]domain.Seat
	bookings map[uuid.UUID]bookingRecord
	seq      int64
}

func newState() *state {
	return &state{
		seats:    make(map[int64]domain.Seat),
		bookings: make(map[uuid.UUID]bookingRecord),
	}
}

func (s *state) clone() *state {
	cp := &state{
		seats:    make(map[int64]domain.Seat, len(s.seats)),
		bookings: make(map[uuid.UUID]bookingRecord, len(s.bookings)),
		seq:      s.seq,
	}
	for id, seat := range s.seats {
		cp.seats[id] = seat
	}
	for id, rec := range s.bookings {
		cp.bookings[id] = rec
	}
	return cp
}

type Option func(*Store)

// WithClock overrides the clock used to stamp new bookings and users.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	sem chan struct{}
	mu  sync.RWMutex
	st  *state
	now func() time.Time

	users *userStore
}

// New returns a store seeded with layout.
func New(layout domain.Layout, opts ...Option) *Store {
	s := &Store{
		sem: make(chan struct{}, 1),
		st:  newState(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, seat := range layout.Seats() {
		s.st.seats[seat.ID] = seat
	}

	s.users = newUserStore(s.now)

	return s
}

func (s *Store) Seats() repository.SeatRepository       { return &SeatRepo{store: s} }
func (s *Store) Bookings() repository.BookingRepository { return &BookingRepo{store: s} }
func (s *Store) Users() repository.UserRepository       { return s.users }

// RunTx runs fn as one unit of work. The unit waits for any other unit to
// finish, or until ctx is done.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.update(ctx, func(st *state) error {
		return fn(ctx, &txRepos{
			seats:    &SeatRepo{store: s, st: st},
			bookings: &BookingRepo{store: s, st: st},
		})
	})
}

func (s *Store) update(ctx context.Context, fn func(st *state) error) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()

	return nil
}

// snapshot returns the published state. Published states are never mutated.
func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

type txRepos struct {
	seats    *SeatRepo
	bookings *BookingRepo
}

func (t *txRepos) Seats() repository.SeatRepository       { return t.seats }
func (t *txRepos) Bookings() repository.BookingRepository { return t.bookings }

// SeatRepo is bound either to the store (st == nil) or to one unit of work.
type SeatRepo struct {
	store *Store
	st    *state
}

func (r *SeatRepo) read() *state {
	if r.st != nil {
		return r.st
	}
	return r.store.snapshot()
}

func (r *SeatRepo) write(ctx context.Context, fn func(st *state) error) error {
	if r.st != nil {
		return fn(r.st)
	}
	return r.store.update(ctx, fn)
}

func (r *SeatRepo) List(ctx context.Context) ([]domain.Seat, error) {
	st := r.read()

	out := make([]domain.Seat, 0, len(st.seats))
	for _, seat := range st.seats {
		out = append(out, seat)
	}
	sortSeats(out)

	return out, nil
}

func (r *SeatRepo) LockByIDs(ctx context.Context, ids []int64) ([]domain.Seat, error) {
	st := r.read()

	out := make([]domain.Seat, 0, len(ids))
	for _, id := range ids {
		if seat, ok := st.seats[id]; ok {
			out = append(out, seat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *SeatRepo) MarkBooked(ctx context.Context, ids []int64) error {
	return r.write(ctx, func(st *state) error {
		for _, id := range ids {
			seat, ok := st.seats[id]
			if !ok || seat.Booked {
				return repository.ErrConflict
			}
		}
		for _, id := range ids {
			seat := st.seats[id]
			seat.Booked = true
			st.seats[id] = seat
		}
		return nil
	})
}

func (r *SeatRepo) MarkFree(ctx context.Context, ids []int64) error {
	return r.write(ctx, func(st *state) error {
		for _, id := range ids {
			if _, ok := st.seats[id]; !ok {
				return repository.ErrUnknownSeat
			}
		}
		for _, id := range ids {
			seat := st.seats[id]
			seat.Booked = false
			st.seats[id] = seat
		}
		return nil
	})
}

func (r *SeatRepo) Seed(ctx context.Context, layout domain.Layout) error {
	return r.write(ctx, func(st *state) error {
		for _, seat := range layout.Seats() {
			if _, ok := st.seats[seat.ID]; !ok {
				st.seats[seat.ID] = seat
			}
		}
		return nil
	})
}

// BookingRepo is bound either to the store (st == nil) or to one unit of work.
type BookingRepo struct {
	store *Store
	st    *state
}

func (r *BookingRepo) read() *state {
	if r.st != nil {
		return r.st
	}
	return r.store.snapshot()
}

func (r *BookingRepo) write(ctx context.Context, fn func(st *state) error) error {
	if r.st != nil {
		return fn(r.st)
	}
	return r.store.update(ctx, fn)
}

func (r *BookingRepo) Create(ctx context.Context, ownerID int64, seatIDs []int64) (*domain.Booking, error) {
	if err := repository.ValidateSeatIDs(seatIDs); err != nil {
		return nil, err
	}

	var out domain.Booking
	err := r.write(ctx, func(st *state) error {
		for _, rec := range st.bookings {
			for _, held := range rec.booking.SeatIDs {
				for _, id := range seatIDs {
					if held == id {
						return repository.ErrConflict
					}
				}
			}
		}

		st.seq++
		b := domain.Booking{
			ID:        uuid.New(),
			OwnerID:   ownerID,
			CreatedAt: r.store.now().UTC(),
			SeatIDs:   append([]int64(nil), seatIDs...),
		}
		st.bookings[b.ID] = bookingRecord{booking: b, seq: st.seq}
		out = copyBooking(b)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	rec, ok := r.read().bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	b := copyBooking(rec.booking)
	return &b, nil
}

// GetForUpdate is Get: a unit of work already excludes every other unit.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return r.Get(ctx, id)
}

func (r *BookingRepo) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Booking, error) {
	var recs []bookingRecord
	for _, rec := range r.read().bookings {
		if rec.booking.OwnerID == ownerID {
			recs = append(recs, rec)
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.booking.CreatedAt.Equal(b.booking.CreatedAt) {
			return a.booking.CreatedAt.After(b.booking.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]domain.Booking, 0, len(recs))
	for _, rec := range recs {
		out = append(out, copyBooking(rec.booking))
	}

	return out, nil
}

func (r *BookingRepo) Delete(ctx context.Context, id uuid.UUID, requestedBy int64) error {
	return r.write(ctx, func(st *state) error {
		rec, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		if rec.booking.OwnerID != requestedBy {
			return repository.ErrForbidden
		}
		delete(st.bookings, id)
		return nil
	})
}

func copyBooking(b domain.Booking) domain.Booking {
	b.SeatIDs = append([]int64(nil), b.SeatIDs...)
	return b
}

func sortSeats(seats []domain.Seat) {
	sort.Slice(seats, func(i, j int) bool {
		if seats[i].Row != seats[j].Row {
			return seats[i].Row < seats[j].Row
		}
		if seats[i].Number != seats[j].Number {
			return seats[i].Number < seats[j].Number
		}
		return seats[i].ID < seats[j].ID
	})
}
