package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-signup-session/internal/config"
	"github.com/go-signup-session/internal/transport/http/handler"
	appmiddleware "github.com/go-signup-session/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	cookie := handler.SessionCookie{Name: cfg.SessionCookieName, Secure: !cfg.IsDevelopment()}
	authMw := appmiddleware.Auth(deps.Sessions, cfg.SessionCookieName)
	optionalAuthMw := appmiddleware.OptionalAuth(deps.Sessions, cfg.SessionCookieName)

	// 5 requests/second, burst of 10 per client IP.
	regRL := deps.RegistrationLimiter
	if regRL == nil {
		regRL = appmiddleware.NewRateLimiter(rate.Limit(5), 10, nil)
	}

	healthH := handler.NewHealthHandler()
	regH := handler.NewRegistrationHandler(deps.Registrations, cookie)
	sessionH := handler.NewSessionHandler(deps.Sessions, cookie)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(regRL.Limit)
			r.Post("/registrations", regH.Issue)
			r.Post("/registrations/confirm", regH.Confirm)
			r.Post("/registrations/resend", regH.Resend)
			r.Post("/sessions/exchange", sessionH.Exchange)
		})

		r.With(optionalAuthMw).Post("/sessions/logout", sessionH.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Get("/users/me", sessionH.Me)
			r.Post("/sessions/refresh", sessionH.Refresh)
		})
	})

	return r
}
