package handler

import (
	"net/http"

	"github.com/go-signup-session/internal/application/registration"
)

// RegistrationHandler exposes the verification ledger.
type RegistrationHandler struct {
	svc    registration.Service
	cookie SessionCookie
}

func NewRegistrationHandler(svc registration.Service, cookie SessionCookie) *RegistrationHandler {
	return &RegistrationHandler{svc: svc, cookie: cookie}
}

func (h *RegistrationHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req registration.IssueRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.IssueRegistration(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RegistrationEnvelope{Email: res.Email, Pending: res.Pending})
}

func (h *RegistrationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "email and code required")
		return
	}
	res, err := h.svc.ConfirmRegistration(r.Context(), req.Email, req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.cookie.Set(w, res.Credential)
	writeJSON(w, http.StatusCreated, UserEnvelope{AccountID: res.AccountID, User: res.User.Snapshot(), Created: true})
}

func (h *RegistrationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}
	if err := h.svc.ReissueRegistration(r.Context(), req.Email); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RegistrationEnvelope{Email: req.Email, Pending: true})
}
