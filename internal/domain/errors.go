package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrRateLimited  = errors.New("too many attempts")
	ErrMismatch     = errors.New("code mismatch")
	ErrDelivery     = errors.New("delivery failed")
	ErrUpstream     = errors.New("upstream failure")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError names the first rule a request violated.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field '%s' failed '%s'", e.Field, e.Rule)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// MismatchError reports a wrong one-time code and how many tries remain.
type MismatchError struct {
	AttemptsLeft int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts left", e.AttemptsLeft)
}

func (e *MismatchError) Unwrap() error { return ErrMismatch }
