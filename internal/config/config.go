package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Storage  string
	Postgres PostgresConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Auth     AuthConfig
	Seats    SeatsConfig
	Booking  BookingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type PostgresConfig struct {
	User        string
	Password    string
	Name        string
	Host        string
	Port        int
	SSLMode     string
	MaxConns    int32
	TxIsolation pgx.TxIsoLevel
}

// DSN returns the connection URL for pgx and golang-migrate.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Name,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	// URL is optional; an empty URL disables booking events.
	URL string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type SeatsConfig struct {
	Total          int
	PerRow         int
	MapCacheTTL    time.Duration
	CountsCacheTTL time.Duration
}

type BookingConfig struct {
	RateLimit      int
	RateWindow     time.Duration
	TxTimeout      time.Duration
	HookTimeout    time.Duration
	IdempotencyTTL time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var errs []error
	get := func(key, def string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return def
	}
	getInt := func(key string, def int) int {
		s := get(key, "")
		if s == "" {
			return def
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return def
		}
		return v
	}
	getDuration := func(key string, def time.Duration) time.Duration {
		s := get(key, "")
		if s == "" {
			return def
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return def
		}
		return v
	}
	getBool := func(key string, def bool) bool {
		s := get(key, "")
		if s == "" {
			return def
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return def
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: get("SERVER_HOST", "localhost"),
			Port: getInt("SERVER_PORT", 8080),
		},
		Storage: strings.ToLower(get("STORAGE_BACKEND", StoragePostgres)),
		Postgres: PostgresConfig{
			User:     get("POSTGRES_USER", ""),
			Password: get("POSTGRES_PASSWORD", ""),
			Name:     get("POSTGRES_DB", ""),
			Host:     get("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			SSLMode:  get("POSTGRES_SSLMODE", "disable"),
			MaxConns: int32(getInt("POSTGRES_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:  getBool("REDIS_ENABLED", true),
			Addr:     get("REDIS_ADDR", "localhost:6379"),
			Password: get("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL: get("RABBITMQ_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret: get("JWT_SECRET", ""),
			TokenTTL:  getDuration("JWT_TTL", 24*time.Hour),
		},
		Seats: SeatsConfig{
			Total:          getInt("SEATS_TOTAL", 80),
			PerRow:         getInt("SEATS_PER_ROW", 7),
			MapCacheTTL:    getDuration("SEATS_CACHE_TTL", 30*time.Second),
			CountsCacheTTL: getDuration("SEATS_COUNTS_CACHE_TTL", 10*time.Second),
		},
		Booking: BookingConfig{
			RateLimit:      getInt("BOOKING_RATE_LIMIT", 10),
			RateWindow:     getDuration("BOOKING_RATE_WINDOW", time.Minute),
			TxTimeout:      getDuration("BOOKING_TX_TIMEOUT", 5*time.Second),
			HookTimeout:    getDuration("BOOKING_HOOK_TIMEOUT", 2*time.Second),
			IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 2*time.Hour),
		},
	}

	iso, err := parseIsoLevel(get("POSTGRES_TX_ISOLATION", "read committed"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Postgres.TxIsolation = iso

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}

	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error

	switch c.Storage {
	case StoragePostgres:
		if c.Postgres.User == "" {
			errs = append(errs, errors.New("missing POSTGRES_USER"))
		}
		if c.Postgres.Password == "" {
			errs = append(errs, errors.New("missing POSTGRES_PASSWORD"))
		}
		if c.Postgres.Name == "" {
			errs = append(errs, errors.New("missing POSTGRES_DB"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid STORAGE_BACKEND %q", c.Storage))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("missing JWT_SECRET"))
	}

	if c.Seats.Total <= 0 || c.Seats.PerRow <= 0 {
		errs = append(errs, errors.New("SEATS_TOTAL and SEATS_PER_ROW must be positive"))
	}

	if c.Booking.HookTimeout <= 0 {
		errs = append(errs, errors.New("BOOKING_HOOK_TIMEOUT must be positive"))
	}

	if c.Booking.RateLimit < 0 {
		errs = append(errs, errors.New("BOOKING_RATE_LIMIT must not be negative"))
	}

	return errs
}

func parseIsoLevel(s string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", " ")) {
	case "read committed":
		return pgx.ReadCommitted, nil
	case "repeatable read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("invalid POSTGRES_TX_ISOLATION %q", s)
	}
}
