package handler

import (
	"net/http"
	"time"

	"github.com/go-signup-session/internal/domain"
)

const sessionCookieMaxAge = 30 * 24 * time.Hour

// SessionCookie writes and clears the HttpOnly session cookie.
type SessionCookie struct {
	Name   string
	Secure bool
}

func (c SessionCookie) Set(w http.ResponseWriter, cred *domain.Credential) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    cred.Token,
		Path:     "/",
		Expires:  cred.ExpiresAt,
		MaxAge:   int(sessionCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
