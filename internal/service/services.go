package service

import (
	redisrepo "github.com/kirinyoku/seatbook/internal/repository/redis"
	"github.com/kirinyoku/seatbook/internal/service/auth"
	"github.com/kirinyoku/seatbook/internal/service/booking"
	"github.com/kirinyoku/seatbook/internal/service/seats"
)

type Services struct {
	Booking *booking.Service
	Seats   *seats.Service
	Auth    *auth.Service
}

type Config struct {
	Booking booking.Config
	Seats   seats.Config
	Auth    auth.Config
}

// NewServices wires every service over deps.Store. cache may be nil.
func NewServices(deps booking.Deps, cache *redisrepo.Cache, cfg Config) *Services {
	return &Services{
		Booking: booking.New(deps, cfg.Booking),
		Seats:   seats.New(deps.Store, cache, deps.Logger, cfg.Seats),
		Auth:    auth.New(deps.Store.Users(), cfg.Auth),
	}
}
