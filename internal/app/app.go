package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/seatbook/internal/config"
	"github.com/kirinyoku/seatbook/internal/domain"
	"github.com/kirinyoku/seatbook/internal/metrics"
	"github.com/kirinyoku/seatbook/internal/postgres"
	"github.com/kirinyoku/seatbook/internal/postgres/migrations"
	"github.com/kirinyoku/seatbook/internal/queue"
	"github.com/kirinyoku/seatbook/internal/redis"
	"github.com/kirinyoku/seatbook/internal/repository"
	"github.com/kirinyoku/seatbook/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/seatbook/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/seatbook/internal/repository/redis"
	"github.com/kirinyoku/seatbook/internal/service"
	"github.com/kirinyoku/seatbook/internal/service/auth"
	"github.com/kirinyoku/seatbook/internal/service/booking"
	"github.com/kirinyoku/seatbook/internal/service/seats"
	httpgin "github.com/kirinyoku/seatbook/internal/transport/http/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	closers    []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	a := &App{cfg: cfg, logger: logger}

	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	var ready []func(ctx context.Context) error

	// Storage
	var store repository.Store
	switch cfg.Storage {
	case config.StorageMemory:
		a.logger.Warn("using in-memory storage; data is lost on restart")
		store = memory.New(domain.Layout{})
	default:
		pool, err := a.initPostgres(ctx)
		if err != nil {
			return err
		}
		store = postgresrepo.NewStore(pool, postgresrepo.Config{IsoLevel: cfg.Postgres.TxIsolation})
		ready = append(ready, pool.Ping)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewWithRegistry(reg)

	deps := booking.Deps{
		Store:   store,
		Metrics: m,
		Logger:  a.logger,
	}

	var cache *redisrepo.Cache
	var routerDeps httpgin.Deps

	// Redis
	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)
		ready = append(ready, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

		cache = redisrepo.New(rdb)
		pubsub := redisrepo.NewSeatsPubSub(rdb)

		deps.Cache = cache
		deps.Notifier = pubsub
		if cfg.Booking.RateLimit > 0 {
			deps.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, "booking", cfg.Booking.RateLimit, cfg.Booking.RateWindow)
		}

		routerDeps.Changes = pubsub
		routerDeps.Idempotency = redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdempotencyTTL)
	} else {
		a.logger.Warn("redis disabled: no seat cache, stream, rate limit or idempotency")
	}

	// RabbitMQ
	if cfg.RabbitMQ.URL != "" {
		pub, err := queue.NewPublisher(cfg.RabbitMQ.URL, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pub.Close)
		deps.Events = pub
	}

	// Services
	services := service.NewServices(deps, cache, service.Config{
		Booking: booking.Config{
			TxTimeout:   cfg.Booking.TxTimeout,
			HookTimeout: cfg.Booking.HookTimeout,
		},
		Seats: seats.Config{
			SeatMapTTL:      cfg.Seats.MapCacheTTL,
			AvailabilityTTL: cfg.Seats.CountsCacheTTL,
		},
		Auth: auth.Config{
			Secret:   cfg.Auth.JWTSecret,
			TokenTTL: cfg.Auth.TokenTTL,
		},
	})

	layout := domain.Layout{TotalSeats: cfg.Seats.Total, SeatsPerRow: cfg.Seats.PerRow}
	if err := services.Seats.EnsureLayout(ctx, layout); err != nil {
		return err
	}

	// Gin router
	routerDeps.Metrics = m
	routerDeps.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	routerDeps.Ready = func(ctx context.Context) error {
		for _, check := range ready {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	router := httpgin.NewRouter(services, routerDeps, a.logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return nil
}

func (a *App) initPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := a.cfg.Postgres.DSN()

	if err := migrations.Up(dsn); err != nil {
		return nil, err
	}

	pool, err := postgres.New(ctx, postgres.Config{
		DSN:         dsn,
		MaxConns:    a.cfg.Postgres.MaxConns,
		LockTimeout: a.cfg.Booking.TxTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	return pool, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	err := g.Wait()
	if cerr := a.Close(); cerr != nil {
		a.logger.Warn("closing resources", "err", cerr)
	}

	return err
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
