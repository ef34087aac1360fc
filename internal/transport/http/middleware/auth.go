package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-signup-session/internal/domain"
)

type contextKey string

const SessionKey contextKey = "session"

// Authenticator resolves a session credential to a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
}

// Auth returns middleware that requires a valid session, read from the
// session cookie or a Bearer header, and injects it into the context.
func Auth(a Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := credential(r, cookieName)
			if tok == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing session")
				return
			}
			sess, err := a.Authenticate(r.Context(), tok)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), SessionKey, sess)))
		})
	}
}

// OptionalAuth injects the session when one is presented and valid, and
// otherwise passes the request through untouched.
func OptionalAuth(a Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := credential(r, cookieName); tok != "" {
				if sess, err := a.Authenticate(r.Context(), tok); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), SessionKey, sess))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext extracts the authenticated session from the request context.
func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*domain.Session)
	return s, ok
}

func credential(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
