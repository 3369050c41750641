package httpgin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/seatbook/internal/repository/redis"
	"github.com/kirinyoku/seatbook/internal/service"
)

const streamHeartbeat = 15 * time.Second

// @Summary  List seats
// @Security BearerAuth
// @Success  200  {array}   domain.Seat
// @Failure  401  {object}  ErrorResponse
// @Router   /api/seats [get]
func handleListSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		seats, err := svcs.Seats.List(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + short private cache: seat state changes on every booking
		writeJSONWithCache(c, http.StatusOK, seats, "private, max-age=5", true)
	}
}

// @Summary  Seat availability counters
// @Security BearerAuth
// @Success  200  {object}  domain.SeatCounts
// @Router   /api/seats/availability [get]
func handleAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := svcs.Seats.Availability(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, counts, "private, max-age=5", true)
	}
}

// @Summary  Stream seat changes (server-sent events)
// @Security BearerAuth
// @Produce  text/event-stream
// @Success  200  {object}  redisrepo.SeatChange
// @Failure  503  {object}  ErrorResponse
// @Router   /api/seats/stream [get]
func handleSeatStream(changes SeatChanges, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if changes == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "seat stream unavailable"})
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		events := make(chan redisrepo.SeatChange, 64)
		go func() {
			defer close(events)
			err := changes.Subscribe(ctx, func(ctx context.Context, change redisrepo.SeatChange) {
				select {
				case events <- change:
				case <-ctx.Done():
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("seat stream subscription ended", "err", err)
			}
		}()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		c.SSEvent("ready", gin.H{"status": "subscribed"})
		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case change, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(change.Type, change)
				return true
			case <-heartbeat.C:
				c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
				return true
			}
		})
	}
}
