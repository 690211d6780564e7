package http

import (
	"context"
	"net/http"
	"strings"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

// Authenticator resolves bearer tokens to users.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

var _ Authenticator = (*app.AuthService)(nil)

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requireRole authenticates the request and, when role is set, checks it.
func requireRole(auth Authenticator, role domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, domain.ErrUnauthenticated)
			return
		}
		user, err := auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		if role != "" && user.Role != role {
			writeError(w, domain.ErrForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, tokenKey, token)
		next(w, r.WithContext(ctx))
	}
}

func currentUser(r *http.Request) domain.User {
	user, _ := r.Context().Value(userKey).(domain.User)
	return user
}

func currentToken(r *http.Request) string {
	token, _ := r.Context().Value(tokenKey).(string)
	return token
}
