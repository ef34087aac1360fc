package http

import (
	"github.com/go-signup-session/internal/application/registration"
	"github.com/go-signup-session/internal/application/session"
	appmiddleware "github.com/go-signup-session/internal/transport/http/middleware"
)

// Deps holds the application services the router exposes.
type Deps struct {
	Registrations registration.Service
	Sessions      session.Service
	// RegistrationLimiter is applied per client IP to the registration routes.
	// Nil means the router builds a default one.
	RegistrationLimiter *appmiddleware.RateLimiter
}
