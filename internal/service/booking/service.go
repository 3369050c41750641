// Package booking is the booking transaction engine. Every Reserve and Cancel
// runs as one unit of work over the seat inventory and the booking ledger.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/seatbook/internal/domain"
	"github.com/kirinyoku/seatbook/internal/metrics"
	"github.com/kirinyoku/seatbook/internal/queue"
	"github.com/kirinyoku/seatbook/internal/repository"
	redisrepo "github.com/kirinyoku/seatbook/internal/repository/redis"
	"github.com/kirinyoku/seatbook/internal/selector"
	"github.com/kirinyoku/seatbook/internal/uow"
)

const (
	opReserve = "reserve"
	opCancel  = "cancel"
)

type SeatCache interface {
	InvalidateSeats(ctx context.Context) error
}

type Notifier interface {
	PublishSeatsChanged(ctx context.Context, changeType string, bookingID uuid.UUID, seatIDs []int64) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

type Limiter interface {
	Allow(ctx context.Context, suffix string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

type Recorder interface {
	ObserveBooking(operation, outcome string)
	ObserveSeats(transition string, n int)
}

// Deps are the collaborators of the engine. Only Store is required; every
// other field may be left nil.
type Deps struct {
	Store    repository.Store
	Cache    SeatCache
	Notifier Notifier
	Events   EventPublisher
	Limiter  Limiter
	Metrics  Recorder
	Logger   *slog.Logger
}

const defaultHookTimeout = 2 * time.Second

type Config struct {
	// TxTimeout bounds how long one unit of work may wait for and hold
	// locks. Zero means no bound.
	TxTimeout time.Duration
	// HookTimeout bounds the side effects run after a commit, so a slow
	// cache or broker delays the caller by at most this much. Zero means
	// two seconds.
	HookTimeout time.Duration
}

// Request selects seats either explicitly (SeatIDs) or automatically
// (Count). Count is used only when SeatIDs is empty.
type Request struct {
	SeatIDs []int64
	Count   int
}

func (r Request) auto() bool {
	return len(r.SeatIDs) == 0 && r.Count != 0
}

type Service struct {
	store    repository.Store
	uow      *uow.UoW
	cache    SeatCache
	notifier Notifier
	events   EventPublisher
	limiter  Limiter
	metrics  Recorder
	log      *slog.Logger
	now      func() time.Time

	hookTimeout time.Duration
}

func New(deps Deps, cfg Config) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = defaultHookTimeout
	}

	return &Service{
		store:    deps.Store,
		uow:      uow.NewUoW(deps.Store, cfg.TxTimeout),
		cache:    deps.Cache,
		notifier: deps.Notifier,
		events:   deps.Events,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
		log:      log,
		now:      time.Now,

		hookTimeout: cfg.HookTimeout,
	}
}

// Reserve books seats for ownerID.
//
// Parameters:
//   - ctx: request-scoped context.
//   - ownerID: the authenticated user the booking will belong to.
//   - req: explicit seat ids, or a party size for auto-selection.
//
// Returns:
//   - *domain.Booking: the created booking.
//   - error: booking.ErrInvalidPartySize if the party is empty or larger than 7.
//   - error: booking.ErrInsufficientSeats if auto-selection finds too few free seats.
//   - error: booking.ErrSeatConflict (as *SeatsUnavailableError) if a seat is already booked.
//   - error: booking.ErrUnknownSeat if an explicit seat id does not exist.
//   - error: booking.ErrRateLimited if the owner exceeded the booking rate.
//   - error: booking.ErrStorageUnavailable if the store failed.
func (s *Service) Reserve(ctx context.Context, ownerID int64, req Request) (*domain.Booking, error) {
	const op = "service.booking.Reserve"

	b, err := s.reserve(ctx, ownerID, req)
	s.observe(opReserve, err)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

func (s *Service) reserve(ctx context.Context, ownerID int64, req Request) (*domain.Booking, error) {
	var explicit []int64
	if req.auto() {
		if req.Count < domain.MinPartySize || req.Count > domain.MaxPartySize {
			return nil, ErrInvalidPartySize
		}
	} else {
		explicit = dedupe(req.SeatIDs)
		if len(explicit) < domain.MinPartySize || len(explicit) > domain.MaxPartySize {
			return nil, ErrInvalidPartySize
		}
	}

	if err := s.allow(ctx, ownerID); err != nil {
		return nil, err
	}

	var created *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		seatIDs := explicit
		if seatIDs == nil {
			snapshot, err := tx.Seats().List(ctx)
			if err != nil {
				return err
			}

			seatIDs, err = selector.Select(snapshot, req.Count)
			if err != nil {
				return err
			}
		}

		if err := recheck(ctx, tx, seatIDs); err != nil {
			return err
		}

		if err := tx.Seats().MarkBooked(ctx, seatIDs); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return &SeatsUnavailableError{SeatIDs: seatIDs}
			}
			return err
		}

		b, err := tx.Bookings().Create(ctx, ownerID, seatIDs)
		if err != nil {
			return err
		}
		created = b

		after(func(ctx context.Context) {
			s.publish(ctx, redisrepo.ChangeBooked, queue.QueueBookingCreated, b)
		})

		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	return created, nil
}

// recheck locks seatIDs and verifies that all of them exist and are free.
func recheck(ctx context.Context, tx repository.Tx, seatIDs []int64) error {
	locked, err := tx.Seats().LockByIDs(ctx, seatIDs)
	if err != nil {
		return err
	}

	found := make(map[int64]bool, len(locked))
	var taken []int64
	for _, seat := range locked {
		found[seat.ID] = true
		if seat.Booked {
			taken = append(taken, seat.ID)
		}
	}

	if len(found) != len(seatIDs) {
		var missing []int64
		for _, id := range seatIDs {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return &UnknownSeatsError{SeatIDs: missing}
	}

	if len(taken) > 0 {
		return &SeatsUnavailableError{SeatIDs: taken}
	}

	return nil
}

// Cancel deletes a booking owned by requestedBy and frees its seats.
//
// Returns:
//   - error: booking.ErrBookingNotFound if the booking does not exist.
//   - error: booking.ErrForbidden if the booking belongs to another user.
//   - error: booking.ErrStorageUnavailable if the store failed.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID, requestedBy int64) error {
	const op = "service.booking.Cancel"

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}

		if b.OwnerID != requestedBy {
			return ErrForbidden
		}

		if err := tx.Seats().MarkFree(ctx, b.SeatIDs); err != nil {
			return err
		}

		if err := tx.Bookings().Delete(ctx, bookingID, requestedBy); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.publish(ctx, redisrepo.ChangeReleased, queue.QueueBookingCancelled, b)
		})

		return nil
	})

	err = classify(err)
	s.observe(opCancel, err)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Get returns one booking with its seats. Only the owner may read it.
func (s *Service) Get(ctx context.Context, bookingID uuid.UUID, requestedBy int64) (*domain.BookingDetails, error) {
	const op = "service.booking.Get"

	b, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, classify(err))
	}

	if b.OwnerID != requestedBy {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	details, err := s.withSeats(ctx, []domain.Booking{*b})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &details[0], nil
}

// ListForOwner returns the owner's bookings, most recent first.
func (s *Service) ListForOwner(ctx context.Context, ownerID int64) ([]domain.BookingDetails, error) {
	const op = "service.booking.ListForOwner"

	list, err := s.store.Bookings().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, classify(err))
	}

	details, err := s.withSeats(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return details, nil
}

func (s *Service) withSeats(ctx context.Context, list []domain.Booking) ([]domain.BookingDetails, error) {
	out := make([]domain.BookingDetails, 0, len(list))
	if len(list) == 0 {
		return out, nil
	}

	seats, err := s.store.Seats().List(ctx)
	if err != nil {
		return nil, classify(err)
	}

	byID := make(map[int64]domain.Seat, len(seats))
	for _, seat := range seats {
		byID[seat.ID] = seat
	}

	for _, b := range list {
		d := domain.BookingDetails{Booking: b, Seats: make([]domain.Seat, 0, len(b.SeatIDs))}
		for _, id := range b.SeatIDs {
			if seat, ok := byID[id]; ok {
				d.Seats = append(d.Seats, seat)
			}
		}
		out = append(out, d)
	}

	return out, nil
}

// allow applies the per-owner rate limit. A limiter that cannot answer lets
// the request through.
func (s *Service) allow(ctx context.Context, ownerID int64) error {
	if s.limiter == nil {
		return nil
	}

	ok, _, retry, err := s.limiter.Allow(ctx, strconv.FormatInt(ownerID, 10))
	if err != nil {
		s.log.Warn("booking rate limiter unavailable", "owner_id", ownerID, "err", err)
		return nil
	}

	if !ok {
		return &RateLimitedError{RetryAfter: retry}
	}

	return nil
}

// publish runs after a commit. Failures are logged and never reach the
// caller, and the whole step is bounded by the hook timeout.
func (s *Service) publish(ctx context.Context, change, event string, b *domain.Booking) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.hookTimeout)
	defer cancel()

	if s.metrics != nil {
		transition := "booked"
		if change == redisrepo.ChangeReleased {
			transition = "released"
		}
		s.metrics.ObserveSeats(transition, len(b.SeatIDs))
	}

	if s.cache != nil {
		if err := s.cache.InvalidateSeats(ctx); err != nil {
			s.log.Warn("invalidate seat cache", "booking_id", b.ID, "err", err)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.PublishSeatsChanged(ctx, change, b.ID, b.SeatIDs); err != nil {
			s.log.Warn("publish seat change", "booking_id", b.ID, "change", change, "err", err)
		}
	}

	if s.events != nil {
		ev := queue.BookingEvent{
			Type:       event,
			BookingID:  b.ID,
			OwnerID:    b.OwnerID,
			SeatIDs:    b.SeatIDs,
			OccurredAt: s.now().UTC(),
		}
		if err := s.events.Publish(ctx, ev); err != nil {
			s.log.Warn("publish booking event", "booking_id", b.ID, "event", event, "err", err)
		}
	}
}

func (s *Service) observe(operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveBooking(operation, Outcome(err))
}

// Outcome maps an engine error to a metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrSeatConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrInsufficientSeats):
		return metrics.OutcomeInsufficient
	case errors.Is(err, ErrInvalidPartySize), errors.Is(err, ErrUnknownSeat):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrBookingNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrForbidden):
		return metrics.OutcomeForbidden
	case errors.Is(err, ErrRateLimited):
		return metrics.OutcomeRateLimited
	default:
		return metrics.OutcomeError
	}
}

// classify maps errors from the store and the selector onto the engine's
// error kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidPartySize),
		errors.Is(err, ErrSeatConflict),
		errors.Is(err, ErrInsufficientSeats),
		errors.Is(err, ErrBookingNotFound),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnknownSeat),
		errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, ErrRateLimited):
		return err
	case errors.Is(err, selector.ErrInvalidPartySize):
		return ErrInvalidPartySize
	case errors.Is(err, selector.ErrInsufficientSeats):
		return ErrInsufficientSeats
	case errors.Is(err, repository.ErrInvalidRequest):
		return ErrInvalidPartySize
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrSeatConflict, err)
	case errors.Is(err, repository.ErrUnknownSeat):
		return ErrUnknownSeat
	case errors.Is(err, repository.ErrNotFound):
		return ErrBookingNotFound
	case errors.Is(err, repository.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
}

// dedupe drops repeated ids, keeping first occurrences in order.
func dedupe(ids []int64) []int64 {
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
