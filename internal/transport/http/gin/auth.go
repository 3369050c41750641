package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/seatbook/internal/service"
)

// @Summary  Register a user
// @Param    req body  RegisterRequest true "payload"
// @Success  201 {object} MessageResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "email taken"
// @Router   /api/register [post]
func handleRegister(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		if _, err := svcs.Auth.Register(
			c.Request.Context(),
			req.Username,
			req.Email,
			req.Password,
		); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, MessageResponse{Message: "User registered successfully"})
	}
}

// @Summary  Log in
// @Param    req body  LoginRequest true "payload"
// @Success  200 {object} LoginResponse
// @Failure  401 {object} ErrorResponse
// @Router   /api/login [post]
func handleLogin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		u, tok, err := svcs.Auth.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:     tok.Value,
			ExpiresAt: tok.ExpiresAt,
			User:      toUserResponse(u),
		})
	}
}
