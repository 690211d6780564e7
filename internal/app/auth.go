package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"quiz-platform/internal/domain"
)

// AuthMode selects how Login checks credentials.
type AuthMode string

const (
	// AuthPassword requires the account's bcrypt password.
	AuthPassword AuthMode = "password"
	// AuthEmail signs in by email alone; meant for demo data only.
	AuthEmail AuthMode = "email"
)

// TokenRevocations remembers logged-out token IDs until they would have expired.
type TokenRevocations interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthSession is what a successful login hands back to the client.
type AuthSession struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

type tokenClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and checks signed session tokens. Its lifecycle mirrors
// the client's: Authenticate a persisted token, Login, Logout.
type AuthService struct {
	users       UserRepository
	revocations TokenRevocations
	mode        AuthMode
	secret      []byte
	ttl         time.Duration
	now         func() time.Time
}

func NewAuthService(users UserRepository, revocations TokenRevocations, mode AuthMode, secret []byte, ttl time.Duration) *AuthService {
	if mode == "" {
		mode = AuthPassword
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthService{
		users:       users,
		revocations: revocations,
		mode:        mode,
		secret:      secret,
		ttl:         ttl,
		now:         time.Now,
	}
}

// SetClock is test-only.
func (a *AuthService) SetClock(now func() time.Time) {
	a.now = now
}

// Login verifies credentials and issues a token.
func (a *AuthService) Login(ctx context.Context, email, password string) (AuthSession, error) {
	user, err := a.users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return AuthSession{}, domain.ErrInvalidCredentials
		}
		return AuthSession{}, err
	}

	if a.mode == AuthPassword {
		if user.PasswordHash == "" {
			return AuthSession{}, domain.ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			return AuthSession{}, domain.ErrInvalidCredentials
		}
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := tokenClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return AuthSession{}, fmt.Errorf("sign token: %w", err)
	}
	log.Printf("user %s signed in", user.ID)
	return AuthSession{Token: signed, ExpiresAt: expires, User: user}, nil
}

// Authenticate resolves a token to the current state of its user.
func (a *AuthService) Authenticate(ctx context.Context, token string) (domain.User, error) {
	claims, err := a.parse(token)
	if err != nil {
		return domain.User{}, err
	}
	revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return domain.User{}, domain.ErrUnauthenticated
	}
	user, err := a.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, domain.ErrUnauthenticated
		}
		return domain.User{}, err
	}
	return user, nil
}

// Logout revokes the token until its natural expiry.
func (a *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := a.parse(token)
	if err != nil {
		return err
	}
	until := a.now().Add(a.ttl)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := a.revocations.Revoke(ctx, claims.ID, until); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	log.Printf("user %s signed out", claims.Subject)
	return nil
}

func (a *AuthService) parse(token string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || claims.ID == "" || claims.Subject == "" {
		return nil, domain.ErrUnauthenticated
	}
	return claims, nil
}

// HashPassword bcrypt-hashes a plain password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
