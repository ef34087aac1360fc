package handler

import (
	"net/http"

	"github.com/go-signup-session/internal/application/session"
	"github.com/go-signup-session/internal/transport/http/middleware"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	svc    session.Service
	cookie SessionCookie
}

func NewSessionHandler(svc session.Service, cookie SessionCookie) *SessionHandler {
	return &SessionHandler{svc: svc, cookie: cookie}
}

func (h *SessionHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req session.ExchangeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Exchange(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.cookie.Set(w, res.Credential)
	writeJSON(w, http.StatusOK, UserEnvelope{User: res.User.Snapshot(), Created: res.Created})
}

// Logout always clears the cookie; a missing or stale session is not an error.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := middleware.SessionFromContext(r.Context()); ok {
		if err := h.svc.Logout(r.Context(), sess.SessionID); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	h.cookie.Clear(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.svc.Current(r.Context(), sess.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: u.Snapshot()})
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	cred, u, err := h.svc.Refresh(r.Context(), sess.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.cookie.Set(w, cred)
	writeJSON(w, http.StatusOK, UserEnvelope{User: u.Snapshot()})
}
