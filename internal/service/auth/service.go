// Package auth registers users, checks their passwords and issues the bearer
// tokens that identify them to the booking engine.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kirinyoku/seatbook/internal/domain"
	"github.com/kirinyoku/seatbook/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit
)

type Config struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
	Issuer     string
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Service struct {
	users repository.UserRepository
	cfg   Config
	now   func() time.Time
}

func New(users repository.UserRepository, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "seatbook"
	}

	return &Service{
		users: users,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Register creates a user with a bcrypt hash of password.
//
// Returns:
//   - *domain.User: the created user.
//   - error: auth.ErrInvalidInput if a field is missing or malformed.
//   - error: auth.ErrEmailTaken if the email is already registered.
func (s *Service) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	const op = "service.auth.Register"

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" ||
		len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	u, err := s.users.Create(ctx, username, email, string(hash))
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return u, nil
}

// Login checks the credentials and issues a token for the user.
//
// Returns:
//   - *domain.User: the authenticated user.
//   - Token: a signed access token.
//   - error: auth.ErrInvalidCredentials on an unknown email or a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, Token, error) {
	const op = "service.auth.Login"

	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Token{}, fmt.Errorf("%s:%w", op, ErrInvalidCredentials)
		}
		return nil, Token{}, fmt.Errorf("%s:%w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, Token{}, fmt.Errorf("%s:%w", op, ErrInvalidCredentials)
	}

	tok, err := s.IssueToken(u)
	if err != nil {
		return nil, Token{}, fmt.Errorf("%s:%w", op, err)
	}

	return u, tok, nil
}

// IssueToken signs an HS256 token whose subject is the user id.
func (s *Service) IssueToken(u *domain.User) (Token, error) {
	now := s.now().UTC()
	exp := now.Add(s.cfg.TokenTTL)

	claims := Claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return Token{}, err
	}

	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Authenticate validates a bearer token and returns the user id it carries.
func (s *Service) Authenticate(raw string) (int64, error) {
	const op = "service.auth.Authenticate"

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			return []byte(s.cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, errors.Join(ErrInvalidToken, err))
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidToken)
	}

	return id, nil
}
