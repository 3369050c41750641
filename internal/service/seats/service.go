package seats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/seatbook/internal/domain"
	"github.com/kirinyoku/seatbook/internal/repository"
	redisrepo "github.com/kirinyoku/seatbook/internal/repository/redis"
)

type Config struct {
	SeatMapTTL      time.Duration
	AvailabilityTTL time.Duration
}

// Service serves read views of the seat inventory. Views are cached in Redis
// when a cache is configured; the booking engine drops them after every
// committed change.
type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	log   *slog.Logger
	cfg   Config
}

func New(store repository.Store, cache *redisrepo.Cache, log *slog.Logger, cfg Config) *Service {
	if cfg.SeatMapTTL <= 0 {
		cfg.SeatMapTTL = 30 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 10 * time.Second
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		store: store,
		cache: cache,
		log:   log,
		cfg:   cfg,
	}
}

// List returns every seat ordered by row, then number.
//
// Parameters:
//   - ctx: request-scoped context.
//
// Returns:
//   - []domain.Seat: the seat map.
//   - error: wrapped storage error.
func (s *Service) List(ctx context.Context) ([]domain.Seat, error) {
	const op = "service.seats.List"

	seats, err := cached(ctx, s, redisrepo.KeySeatMap(), s.cfg.SeatMapTTL, s.store.Seats().List)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return seats, nil
}

// Availability returns free, booked and total seat counts.
func (s *Service) Availability(ctx context.Context) (*domain.SeatCounts, error) {
	const op = "service.seats.Availability"

	counts, err := cached(ctx, s, redisrepo.KeySeatCounts(), s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.SeatCounts, error) {
			seats, err := s.store.Seats().List(ctx)
			if err != nil {
				return domain.SeatCounts{}, err
			}
			return Count(seats), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &counts, nil
}

// EnsureLayout seeds the seats of layout that are missing and drops cached
// views.
func (s *Service) EnsureLayout(ctx context.Context, layout domain.Layout) error {
	const op = "service.seats.EnsureLayout"

	if err := s.store.Seats().Seed(ctx, layout); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateSeats(ctx); err != nil {
			s.log.Warn("invalidate seat cache", "err", err)
		}
	}

	return nil
}

// Count tallies a seat snapshot.
func Count(seats []domain.Seat) domain.SeatCounts {
	var c domain.SeatCounts
	for _, seat := range seats {
		if seat.Booked {
			c.Booked++
		} else {
			c.Free++
		}
	}
	c.Total = c.Free + c.Booked
	return c
}

func cached[T any](
	ctx context.Context,
	s *Service,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if s.cache == nil {
		return loader(ctx)
	}
	return redisrepo.GetOrSetJSON(ctx, s.cache, key, ttl, loader)
}
