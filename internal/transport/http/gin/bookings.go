package httpgin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/seatbook/internal/repository/redis"
	"github.com/kirinyoku/seatbook/internal/service"
	"github.com/kirinyoku/seatbook/internal/service/booking"
)

const idemLockTTL = 30 * time.Second

// @Summary  Create booking (idempotent)
// @Description Books the listed seatIds, or count seats chosen by the server.
// @Security BearerAuth
// @Param    req body  CreateBookingRequest true "payload"
// @Param    Idempotency-Key header string false "replay protection"
// @Success  201 {object} CreateBookingResponse
// @Failure  400 {object} ErrorResponse "invalid party size / unknown seat"
// @Failure  409 {object} ErrorResponse "seats already booked / not enough seats / idem in progress"
// @Failure  422 {object} ErrorResponse "idempotency key reused with a different body"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Failure  503 {object} ErrorResponse
// @Router   /api/bookings [post]
func handleCreateBooking(svcs *service.Services, idem Idempotency, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if len(req.SeatIDs) > 0 && req.Count != 0 {
			badRequest(c, "provide either seatIds or count, not both")
			return
		}

		ctx := c.Request.Context()
		uid := userID(c)

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey, fingerprint string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(uid, idemKey)
			fingerprint = requestFingerprint(req)

			rec, err := idem.Lookup(ctx, idemStorageKey)
			if err != nil {
				respondErr(c, err)
				return
			}
			if settled(c, rec, idemKey, fingerprint) {
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, fingerprint, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				// Lost the race; the winner may have finished already.
				rec, err := idem.Lookup(ctx, idemStorageKey)
				if err != nil {
					respondErr(c, err)
					return
				}
				if !settled(c, rec, idemKey, fingerprint) {
					inProgress(c)
				}
				return
			}
		}

		b, err := svcs.Booking.Reserve(ctx, uid, booking.Request{
			SeatIDs: req.SeatIDs,
			Count:   req.Count,
		})
		if err != nil {
			if idemStorageKey != "" {
				if rerr := idem.Release(context.WithoutCancel(ctx), idemStorageKey); rerr != nil {
					logger.Warn("idempotency release failed", "key", idemKey, "err", rerr)
				}
			}
			respondErr(c, err)
			return
		}

		resp := CreateBookingResponse{
			Message:   "Booking successful",
			BookingID: b.ID.String(),
			Booking:   toBookingResponse(*b, nil),
		}

		if idemStorageKey != "" {
			// The booking is committed, so a failed save only costs replay.
			payload, err := json.Marshal(resp)
			if err == nil {
				err = idem.SaveResult(context.WithoutCancel(ctx), idemStorageKey, fingerprint, string(payload))
			}
			if err != nil {
				logger.Warn("idempotency result not stored",
					"key", idemKey,
					"booking_id", b.ID,
					"err", err,
				)
			}
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// requestFingerprint hashes the bound request, so bodies that differ only in
// whitespace or field order share a fingerprint.
func requestFingerprint(req CreateBookingRequest) string {
	canonical, _ := json.Marshal(req)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// settled writes the response for a key that already has a record and
// reports whether it did.
func settled(c *gin.Context, rec redisrepo.IdemRecord, idemKey, fingerprint string) bool {
	switch {
	case rec.State == redisrepo.IdemAbsent:
		return false
	case rec.Fingerprint != fingerprint:
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "idempotency key reused with a different request body"})
	case rec.State == redisrepo.IdemDone:
		replay(c, idemKey, rec.Payload)
	default:
		inProgress(c)
	}
	return true
}

func inProgress(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
}

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Header("Idempotent-Replayed", "true")
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
}

// @Summary  List my bookings, most recent first
// @Security BearerAuth
// @Success  200 {array} BookingResponse
// @Router   /api/bookings [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Booking.ListForOwner(c.Request.Context(), userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]BookingResponse, 0, len(list))
		for _, d := range list {
			out = append(out, toBookingResponse(d.Booking, d.Seats))
		}

		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Get one of my bookings
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /api/bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		d, err := svcs.Booking.Get(c.Request.Context(), id, userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toBookingResponse(d.Booking, d.Seats))
	}
}

// @Summary  Cancel one of my bookings
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} MessageResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /api/bookings/{id} [delete]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		if err := svcs.Booking.Cancel(c.Request.Context(), id, userID(c)); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, MessageResponse{Message: "Booking cancelled successfully"})
	}
}
