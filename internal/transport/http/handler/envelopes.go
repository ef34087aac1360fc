package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-signup-session/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	Field        string `json:"field,omitempty"`
	Rule         string `json:"rule,omitempty"`
	AttemptsLeft *int   `json:"attempts_left,omitempty"`
}

// RegistrationEnvelope wraps issue/resend responses. The code is never included.
type RegistrationEnvelope struct {
	Email   string `json:"email"`
	Pending bool   `json:"pending"`
}

// UserEnvelope wraps every response that identifies the caller.
type UserEnvelope struct {
	AccountID string               `json:"account_id,omitempty"`
	User      *domain.UserSnapshot `json:"user"`
	Created   bool                 `json:"created,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// writeDomainError maps service errors to status codes with a user-facing message.
// Anything unrecognized is logged and reported as a 500 without detail.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var me *domain.MismatchError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: "invalid " + ve.Field, Field: ve.Field, Rule: ve.Rule})
	case errors.As(err, &me):
		left := me.AttemptsLeft
		writeJSON(w, http.StatusUnauthorized, MessageEnvelope{Error: "incorrect code", AttemptsLeft: &left})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "no pending registration for this email")
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusGone, "code expired, request a new one")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many attempts, register again")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrUpstream):
		writeError(w, http.StatusBadGateway, "temporarily unavailable, try again")
	default:
		slog.Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
