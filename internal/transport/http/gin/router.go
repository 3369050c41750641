package httpgin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/seatbook/internal/metrics"
	redisrepo "github.com/kirinyoku/seatbook/internal/repository/redis"
	"github.com/kirinyoku/seatbook/internal/service"
	"github.com/kirinyoku/seatbook/internal/service/auth"
	"github.com/kirinyoku/seatbook/internal/service/booking"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Idempotency stores responses of POST /api/bookings by Idempotency-Key,
// together with a fingerprint of the request body that first used the key.
type Idempotency interface {
	Lookup(ctx context.Context, key string) (redisrepo.IdemRecord, error)
	AcquireLock(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key, fingerprint, jsonPayload string) error
	Release(ctx context.Context, key string) error
}

// SeatChanges streams committed seat changes.
type SeatChanges interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, change redisrepo.SeatChange)) error
}

// Deps are the optional collaborators of the router. Nil fields switch the
// matching feature off.
type Deps struct {
	Idempotency    Idempotency
	Changes        SeatChanges
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Ready          func(ctx context.Context) error
}

func NewRouter(
	svcs *service.Services,
	deps Deps,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	if deps.Metrics != nil {
		r.Use(MetricsMiddleware(deps.Metrics))
	}
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", handleHealth(deps.Ready))

	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	api := r.Group("/api")
	{
		api.POST("/register", handleRegister(svcs))
		api.POST("/login", handleLogin(svcs))
	}

	authed := api.Group("", AuthMiddleware(svcs.Auth))
	{
		authed.GET("/seats", handleListSeats(svcs))
		authed.GET("/seats/availability", handleAvailability(svcs))
		authed.GET("/seats/stream", handleSeatStream(deps.Changes, logger))

		authed.POST("/bookings", handleCreateBooking(svcs, deps.Idempotency, logger))
		authed.GET("/bookings", handleListBookings(svcs))
		authed.GET("/bookings/:id", handleGetBooking(svcs))
		authed.DELETE("/bookings/:id", handleCancelBooking(svcs))
	}

	return r
}

// @Summary  Health check
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  ErrorResponse
// @Router   /healthz [get]
func handleHealth(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "not ready"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var unavailable *booking.SeatsUnavailableError
	var unknown *booking.UnknownSeatsError
	var limited *booking.RateLimitedError

	switch {
	// booking engine
	case errors.As(err, &unavailable):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   booking.ErrSeatConflict.Error(),
			SeatIDs: unavailable.SeatIDs,
		})
	case errors.Is(err, booking.ErrSeatConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: booking.ErrSeatConflict.Error()})
	case errors.Is(err, booking.ErrInsufficientSeats):
		c.JSON(http.StatusConflict, ErrorResponse{Error: booking.ErrInsufficientSeats.Error()})
	case errors.Is(err, booking.ErrInvalidPartySize):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: booking.ErrInvalidPartySize.Error()})
	case errors.As(err, &unknown):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   booking.ErrUnknownSeat.Error(),
			SeatIDs: unknown.SeatIDs,
		})
	case errors.Is(err, booking.ErrUnknownSeat):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: booking.ErrUnknownSeat.Error()})
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: booking.ErrBookingNotFound.Error()})
	case errors.Is(err, booking.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: booking.ErrForbidden.Error()})
	case errors.As(err, &limited):
		secs := int(limited.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: booking.ErrRateLimited.Error()})
	case errors.Is(err, booking.ErrStorageUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: booking.ErrStorageUnavailable.Error()})
	// auth service
	case errors.Is(err, auth.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: auth.ErrInvalidInput.Error()})
	case errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: auth.ErrEmailTaken.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid credentials"})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
