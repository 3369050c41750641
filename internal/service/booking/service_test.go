package booking

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/seatbook/internal/domain"
	"github.com/kirinyoku/seatbook/internal/metrics"
	"github.com/kirinyoku/seatbook/internal/queue"
	"github.com/kirinyoku/seatbook/internal/repository"
	"github.com/kirinyoku/seatbook/internal/repository/memory"
	redisrepo "github.com/kirinyoku/seatbook/internal/repository/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu            sync.Mutex
	invalidations int
	changes       []redisrepo.SeatChange
	events        []queue.BookingEvent
	outcomes      []string
	seats         map[string]int
}

func newRecorder() *recorder {
	return &recorder{seats: make(map[string]int)}
}

func (r *recorder) InvalidateSeats(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidations++
	return nil
}

func (r *recorder) PublishSeatsChanged(ctx context.Context, changeType string, bookingID uuid.UUID, seatIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, redisrepo.SeatChange{Type: changeType, BookingID: bookingID, SeatIDs: seatIDs})
	return nil
}

func (r *recorder) Publish(ctx context.Context, ev queue.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return errors.New("broker down")
}

func (r *recorder) ObserveBooking(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, operation+"/"+outcome)
}

func (r *recorder) ObserveSeats(transition string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seats[transition] += n
}

type stubLimiter struct {
	allowed bool
	retry   time.Duration
	err     error
	calls   []string
}

func (l *stubLimiter) Allow(ctx context.Context, suffix string) (bool, int64, time.Duration, error) {
	l.calls = append(l.calls, suffix)
	return l.allowed, 1, l.retry, l.err
}

func newService(t *testing.T, layout domain.Layout) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New(layout)
	return New(Deps{Store: store}, Config{}), store
}

func snapshot(t *testing.T, store repository.Store) []domain.Seat {
	t.Helper()
	seats, err := store.Seats().List(context.Background())
	require.NoError(t, err)
	return seats
}

func bookedSet(t *testing.T, store repository.Store) []int64 {
	t.Helper()
	var out []int64
	for _, s := range snapshot(t, store) {
		if s.Booked {
			out = append(out, s.ID)
		}
	}
	return out
}

// assertLedgerMatchesInventory checks that the booked seats are exactly the
// union of the owners' active bookings, with no seat held twice.
func assertLedgerMatchesInventory(t *testing.T, store repository.Store, owners []int64) {
	t.Helper()

	var held []int64
	seen := make(map[int64]bool)
	for _, owner := range owners {
		list, err := store.Bookings().ListByOwner(context.Background(), owner)
		require.NoError(t, err)
		for _, b := range list {
			for _, id := range b.SeatIDs {
				require.False(t, seen[id], "seat %d held by two bookings", id)
				seen[id] = true
				held = append(held, id)
			}
		}
	}
	sort.Slice(held, func(i, j int) bool { return held[i] < held[j] })

	booked := bookedSet(t, store)
	if len(held) == 0 {
		assert.Empty(t, booked)
		return
	}
	assert.Equal(t, held, booked)
}

func bookSeats(t *testing.T, store repository.Store, ids ...int64) {
	t.Helper()
	require.NoError(t, store.Seats().MarkBooked(context.Background(), ids))
}

func TestReserve_Explicit(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, domain.DefaultLayout)

	b, err := svc.Reserve(ctx, 1, Request{SeatIDs: []int64{10, 3, 10, 4}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), b.OwnerID)
	assert.Equal(t, []int64{10, 3, 4}, b.SeatIDs, "duplicates dropped, order kept")
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, []int64{3, 4, 10}, bookedSet(t, store))
	assertLedgerMatchesInventory(t, store, []int64{1})
}

func TestReserve_ExplicitErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "empty", req: Request{}, wantErr: ErrInvalidPartySize},
		{name: "eight seats", req: Request{SeatIDs: []int64{1, 2, 3, 4, 5, 6, 7, 8}}, wantErr: ErrInvalidPartySize},
		{name: "unknown seat", req: Request{SeatIDs: []int64{1, 81}}, wantErr: ErrUnknownSeat},
		{name: "already booked", req: Request{SeatIDs: []int64{2, 5}}, wantErr: ErrSeatConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t, domain.DefaultLayout)
			bookSeats(t, store, 5)
			before := snapshot(t, store)

			b, err := svc.Reserve(ctx, 1, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, b)
			assert.Equal(t, before, snapshot(t, store), "failed reserve must not mutate inventory")
		})
	}
}

func TestReserve_ConflictReportsSeats(t *testing.T) {
	svc, store := newService(t, domain.DefaultLayout)
	bookSeats(t, store, 2, 4)

	_, err := svc.Reserve(context.Background(), 1, Request{SeatIDs: []int64{4, 3, 2}})

	var unavailable *SeatsUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []int64{2, 4}, unavailable.SeatIDs)
	assert.ErrorIs(t, err, ErrSeatConflict)
}

func TestReserve_UnknownReportsSeats(t *testing.T) {
	svc, _ := newService(t, domain.Layout{TotalSeats: 10, SeatsPerRow: 5})

	_, err := svc.Reserve(context.Background(), 1, Request{SeatIDs: []int64{12, 1, 11}})

	var unknown *UnknownSeatsError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []int64{12, 11}, unknown.SeatIDs)
}

func TestReserve_Count(t *testing.T) {
	ctx := context.Background()

	t.Run("same row first fit", func(t *testing.T) {
		svc, store := newService(t, domain.Layout{TotalSeats: 8, SeatsPerRow: 4})
		bookSeats(t, store, 3)

		b, err := svc.Reserve(ctx, 1, Request{Count: 3})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 4}, b.SeatIDs)
	})

	t.Run("cross row fallback", func(t *testing.T) {
		svc, store := newService(t, domain.Layout{TotalSeats: 12, SeatsPerRow: 4})
		bookSeats(t, store, 1, 2, 5, 6, 9)

		b, err := svc.Reserve(ctx, 1, Request{Count: 5})
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4, 7, 8, 10}, b.SeatIDs)
	})

	t.Run("never returns booked seats and always n", func(t *testing.T) {
		svc, store := newService(t, domain.DefaultLayout)
		owners := []int64{}
		for n := 1; n <= 7; n++ {
			before := bookedSet(t, store)
			owner := int64(n)
			owners = append(owners, owner)

			b, err := svc.Reserve(ctx, owner, Request{Count: n})
			require.NoError(t, err)
			require.Len(t, b.SeatIDs, n)
			for _, id := range b.SeatIDs {
				assert.NotContains(t, before, id)
			}
		}
		assertLedgerMatchesInventory(t, store, owners)
	})

	t.Run("insufficient seats", func(t *testing.T) {
		svc, store := newService(t, domain.Layout{TotalSeats: 4, SeatsPerRow: 2})
		bookSeats(t, store, 1, 3)
		before := snapshot(t, store)

		_, err := svc.Reserve(ctx, 1, Request{Count: 3})
		require.ErrorIs(t, err, ErrInsufficientSeats)
		assert.Equal(t, before, snapshot(t, store))
	})

	t.Run("seven with exactly seven free", func(t *testing.T) {
		svc, store := newService(t, domain.DefaultLayout)
		var taken []int64
		for id := int64(8); id <= 80; id++ {
			taken = append(taken, id)
		}
		bookSeats(t, store, taken...)

		b, err := svc.Reserve(ctx, 1, Request{Count: 7})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, b.SeatIDs)
		assert.Len(t, bookedSet(t, store), 80)
	})
}

func TestReserve_PartySizeBoundaries(t *testing.T) {
	ctx := context.Background()

	for _, n := range []int{0, 8, -1} {
		svc, store := newService(t, domain.DefaultLayout)
		_, err := svc.Reserve(ctx, 1, Request{Count: n})
		assert.ErrorIs(t, err, ErrInvalidPartySize, "n=%d", n)
		assert.Empty(t, bookedSet(t, store))
	}
}

func TestReserve_ExplicitWinsOverCount(t *testing.T) {
	svc, _ := newService(t, domain.DefaultLayout)

	b, err := svc.Reserve(context.Background(), 1, Request{SeatIDs: []int64{9}, Count: 5})
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, b.SeatIDs)
}

func TestReserve_ConcurrentOverlap(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, domain.DefaultLayout)

	requests := [][]int64{
		{1, 2, 3},
		{3, 4},
		{2, 3, 6},
		{3},
		{1, 3, 7},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(requests))
	for i, ids := range requests {
		wg.Add(1)
		go func(i int, ids []int64) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, int64(i+1), Request{SeatIDs: ids})
		}(i, ids)
	}
	wg.Wait()

	winners := 0
	var winner []int64
	for i, err := range errs {
		if err == nil {
			winners++
			winner = requests[i]
			continue
		}
		assert.ErrorIs(t, err, ErrSeatConflict)
	}
	require.Equal(t, 1, winners, "every request overlaps on seat 3")

	want := append([]int64(nil), winner...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	assert.Equal(t, want, bookedSet(t, store))
	assertLedgerMatchesInventory(t, store, []int64{1, 2, 3, 4, 5})
}

func TestReserve_ConcurrentAutoNeverOverlaps(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, domain.DefaultLayout)

	const workers = 20
	var wg sync.WaitGroup
	owners := make([]int64, workers)
	for i := 0; i < workers; i++ {
		owners[i] = int64(i + 1)
		wg.Add(1)
		go func(owner int64) {
			defer wg.Done()
			_, err := svc.Reserve(ctx, owner, Request{Count: 4})
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientSeats)
			}
		}(owners[i])
	}
	wg.Wait()

	assert.Len(t, bookedSet(t, store), 80)
	assertLedgerMatchesInventory(t, store, owners)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip restores inventory", func(t *testing.T) {
		svc, store := newService(t, domain.DefaultLayout)
		bookSeats(t, store, 1, 2)
		before := snapshot(t, store)

		b, err := svc.Reserve(ctx, 5, Request{Count: 6})
		require.NoError(t, err)
		require.NoError(t, svc.Cancel(ctx, b.ID, 5))

		assert.Equal(t, before, snapshot(t, store))
	})

	t.Run("twice yields not found", func(t *testing.T) {
		svc, store := newService(t, domain.DefaultLayout)
		before := snapshot(t, store)

		b, err := svc.Reserve(ctx, 5, Request{SeatIDs: []int64{7, 8}})
		require.NoError(t, err)

		require.NoError(t, svc.Cancel(ctx, b.ID, 5))
		assert.ErrorIs(t, svc.Cancel(ctx, b.ID, 5), ErrBookingNotFound)
		assert.Equal(t, before, snapshot(t, store))
	})

	t.Run("unknown booking does not mutate", func(t *testing.T) {
		svc, store := newService(t, domain.DefaultLayout)
		_, err := svc.Reserve(ctx, 5, Request{Count: 2})
		require.NoError(t, err)
		before := snapshot(t, store)

		assert.ErrorIs(t, svc.Cancel(ctx, uuid.New(), 5), ErrBookingNotFound)
		assert.Equal(t, before, snapshot(t, store))
	})

	t.Run("other owner is forbidden", func(t *testing.T) {
		svc, store := newService(t, domain.DefaultLayout)
		b, err := svc.Reserve(ctx, 5, Request{Count: 2})
		require.NoError(t, err)

		assert.ErrorIs(t, svc.Cancel(ctx, b.ID, 6), ErrForbidden)
		assert.Equal(t, []int64{1, 2}, bookedSet(t, store))

		_, err = store.Bookings().Get(ctx, b.ID)
		assert.NoError(t, err)
	})

	t.Run("concurrent cancels", func(t *testing.T) {
		svc, store := newService(t, domain.DefaultLayout)
		b, err := svc.Reserve(ctx, 5, Request{Count: 3})
		require.NoError(t, err)

		const callers = 8
		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- svc.Cancel(ctx, b.ID, 5)
			}()
		}
		wg.Wait()
		close(errs)

		ok := 0
		for err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, ErrBookingNotFound)
		}
		assert.Equal(t, 1, ok)
		assert.Empty(t, bookedSet(t, store))
	})
}

func TestRandomSequenceKeepsLedgerAndInventoryInSync(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, domain.Layout{TotalSeats: 30, SeatsPerRow: 6})
	rng := rand.New(rand.NewSource(42))
	owners := []int64{1, 2, 3}

	var active []domain.Booking
	for step := 0; step < 300; step++ {
		owner := owners[rng.Intn(len(owners))]

		switch op := rng.Intn(3); {
		case op == 0 && len(active) > 0:
			i := rng.Intn(len(active))
			b := active[i]
			requestedBy := b.OwnerID
			if rng.Intn(4) == 0 {
				requestedBy = owner
			}
			err := svc.Cancel(ctx, b.ID, requestedBy)
			if requestedBy == b.OwnerID {
				require.NoError(t, err)
				active = append(active[:i], active[i+1:]...)
			} else {
				require.ErrorIs(t, err, ErrForbidden)
			}
		case op == 1:
			n := rng.Intn(3) + 1
			ids := make([]int64, n)
			for i := range ids {
				ids[i] = int64(rng.Intn(30) + 1)
			}
			b, err := svc.Reserve(ctx, owner, Request{SeatIDs: ids})
			if err == nil {
				active = append(active, *b)
			} else {
				require.ErrorIs(t, err, ErrSeatConflict)
			}
		default:
			b, err := svc.Reserve(ctx, owner, Request{Count: rng.Intn(7) + 1})
			if err == nil {
				active = append(active, *b)
			} else {
				require.ErrorIs(t, err, ErrInsufficientSeats)
			}
		}

		assertLedgerMatchesInventory(t, store, owners)
	}
}

func TestReserve_AfterCommitHooks(t *testing.T) {
	ctx := context.Background()
	store := memory.New(domain.DefaultLayout)
	rec := newRecorder()
	svc := New(Deps{
		Store:    store,
		Cache:    rec,
		Notifier: rec,
		Events:   rec,
		Metrics:  rec,
	}, Config{TxTimeout: time.Second})

	b, err := svc.Reserve(ctx, 3, Request{Count: 2})
	require.NoError(t, err, "broker failures never fail a committed booking")

	_, err = svc.Reserve(ctx, 3, Request{SeatIDs: b.SeatIDs})
	require.ErrorIs(t, err, ErrSeatConflict)

	require.NoError(t, svc.Cancel(ctx, b.ID, 3))

	rec.mu.Lock()
	defer rec.mu.Unlock()

	assert.Equal(t, 2, rec.invalidations)
	require.Len(t, rec.changes, 2)
	assert.Equal(t, redisrepo.ChangeBooked, rec.changes[0].Type)
	assert.Equal(t, redisrepo.ChangeReleased, rec.changes[1].Type)
	assert.Equal(t, b.SeatIDs, rec.changes[1].SeatIDs)

	require.Len(t, rec.events, 2)
	assert.Equal(t, queue.QueueBookingCreated, rec.events[0].Type)
	assert.Equal(t, queue.QueueBookingCancelled, rec.events[1].Type)
	assert.Equal(t, int64(3), rec.events[0].OwnerID)
	assert.Equal(t, b.ID, rec.events[1].BookingID)

	assert.Equal(t, []string{
		"reserve/" + metrics.OutcomeSuccess,
		"reserve/" + metrics.OutcomeConflict,
		"cancel/" + metrics.OutcomeSuccess,
	}, rec.outcomes)
	assert.Equal(t, 2, rec.seats["booked"])
	assert.Equal(t, 2, rec.seats["released"])
}

func TestReserve_NoHooksOnFailure(t *testing.T) {
	store := memory.New(domain.DefaultLayout)
	rec := newRecorder()
	svc := New(Deps{Store: store, Cache: rec, Notifier: rec, Events: rec}, Config{})

	_, err := svc.Reserve(context.Background(), 1, Request{SeatIDs: []int64{404}})
	require.ErrorIs(t, err, ErrUnknownSeat)

	assert.Zero(t, rec.invalidations)
	assert.Empty(t, rec.changes)
	assert.Empty(t, rec.events)
}

// stalledBroker never acknowledges a publish until its context ends.
type stalledBroker struct {
	deadlines chan bool
}

func (b *stalledBroker) Publish(ctx context.Context, ev queue.BookingEvent) error {
	_, hasDeadline := ctx.Deadline()
	b.deadlines <- hasDeadline
	<-ctx.Done()
	return ctx.Err()
}

func TestAfterCommitHooksAreBounded(t *testing.T) {
	store := memory.New(domain.DefaultLayout)
	broker := &stalledBroker{deadlines: make(chan bool, 2)}
	svc := New(Deps{Store: store, Events: broker}, Config{HookTimeout: 50 * time.Millisecond})

	ctx := context.Background()

	start := time.Now()
	b, err := svc.Reserve(ctx, 5, Request{Count: 3})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, <-broker.deadlines)
	assert.Len(t, bookedSet(t, store), 3)

	start = time.Now()
	require.NoError(t, svc.Cancel(ctx, b.ID, 5))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, <-broker.deadlines)
	assert.Empty(t, bookedSet(t, store))
}

func TestNew_DefaultHookTimeout(t *testing.T) {
	svc := New(Deps{Store: memory.New(domain.DefaultLayout)}, Config{})
	assert.Equal(t, defaultHookTimeout, svc.hookTimeout)
}

func TestReserve_RateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected", func(t *testing.T) {
		store := memory.New(domain.DefaultLayout)
		lim := &stubLimiter{allowed: false, retry: 3 * time.Second}
		svc := New(Deps{Store: store, Limiter: lim}, Config{})

		_, err := svc.Reserve(ctx, 42, Request{Count: 1})
		require.ErrorIs(t, err, ErrRateLimited)

		var rl *RateLimitedError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, 3*time.Second, rl.RetryAfter)
		assert.Equal(t, []string{"42"}, lim.calls)
		assert.Empty(t, bookedSet(t, store))
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		store := memory.New(domain.DefaultLayout)
		lim := &stubLimiter{err: errors.New("redis down")}
		svc := New(Deps{Store: store, Limiter: lim}, Config{})

		_, err := svc.Reserve(ctx, 42, Request{Count: 1})
		require.NoError(t, err)
	})

	t.Run("invalid requests are not counted", func(t *testing.T) {
		store := memory.New(domain.DefaultLayout)
		lim := &stubLimiter{allowed: true}
		svc := New(Deps{Store: store, Limiter: lim}, Config{})

		_, err := svc.Reserve(ctx, 42, Request{Count: 9})
		require.ErrorIs(t, err, ErrInvalidPartySize)
		assert.Empty(t, lim.calls)
	})
}

func TestReserve_TxTimeout(t *testing.T) {
	store := memory.New(domain.DefaultLayout)
	svc := New(Deps{Store: store}, Config{TxTimeout: 20 * time.Millisecond})

	hold := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = store.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered
	defer close(hold)

	_, err := svc.Reserve(context.Background(), 1, Request{Count: 1})
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	store := memory.New(domain.DefaultLayout, memory.WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))
	svc := New(Deps{Store: store}, Config{})

	first, err := svc.Reserve(ctx, 1, Request{SeatIDs: []int64{8, 9}})
	require.NoError(t, err)
	second, err := svc.Reserve(ctx, 1, Request{Count: 1})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, 2, Request{Count: 1})
	require.NoError(t, err)

	got, err := svc.Get(ctx, first.ID, 1)
	require.NoError(t, err)
	require.Len(t, got.Seats, 2)
	assert.Equal(t, domain.Seat{ID: 8, Row: 2, Number: 1, Booked: true}, got.Seats[0])
	assert.Equal(t, domain.Seat{ID: 9, Row: 2, Number: 2, Booked: true}, got.Seats[1])

	_, err = svc.Get(ctx, first.ID, 2)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	list, err := svc.ListForOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	empty, err := svc.ListForOwner(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{in: repository.ErrConflict, want: ErrSeatConflict},
		{in: repository.ErrUnknownSeat, want: ErrUnknownSeat},
		{in: repository.ErrNotFound, want: ErrBookingNotFound},
		{in: repository.ErrForbidden, want: ErrForbidden},
		{in: repository.ErrInvalidRequest, want: ErrInvalidPartySize},
		{in: context.DeadlineExceeded, want: ErrStorageUnavailable},
		{in: context.Canceled, want: context.Canceled},
		{in: errors.New("connection refused"), want: ErrStorageUnavailable},
	}

	for _, tt := range tests {
		assert.ErrorIs(t, classify(tt.in), tt.want, "%v", tt.in)
	}
	assert.NoError(t, classify(nil))
	assert.NotErrorIs(t, classify(context.Canceled), ErrStorageUnavailable)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeSuccess, Outcome(nil))
	assert.Equal(t, metrics.OutcomeConflict, Outcome(&SeatsUnavailableError{}))
	assert.Equal(t, metrics.OutcomeInvalid, Outcome(&UnknownSeatsError{}))
	assert.Equal(t, metrics.OutcomeRateLimited, Outcome(&RateLimitedError{}))
	assert.Equal(t, metrics.OutcomeError, Outcome(ErrStorageUnavailable))
}
