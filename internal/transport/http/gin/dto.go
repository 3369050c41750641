package httpgin

import (
	"time"

	"github.com/kirinyoku/seatbook/internal/domain"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// CreateBookingRequest books either the listed seats or, when SeatIDs is
// empty, Count seats chosen by the server.
type CreateBookingRequest struct {
	SeatIDs []int64 `json:"seatIds"`
	Count   int     `json:"count"`
}

type CreateBookingResponse struct {
	Message   string          `json:"message"`
	BookingID string          `json:"bookingId"`
	Booking   BookingResponse `json:"booking"`
}

type BookingResponse struct {
	ID          string        `json:"id"`
	BookingTime time.Time     `json:"booking_time"`
	SeatIDs     []int64       `json:"seatIds"`
	Seats       []domain.Seat `json:"seats,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string  `json:"error"`
	SeatIDs []int64 `json:"seatIds,omitempty"`
}

func toBookingResponse(b domain.Booking, seats []domain.Seat) BookingResponse {
	return BookingResponse{
		ID:          b.ID.String(),
		BookingTime: b.CreatedAt,
		SeatIDs:     b.SeatIDs,
		Seats:       seats,
	}
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}
