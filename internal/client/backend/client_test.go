package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-signup-session/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func snapshot() *domain.UserSnapshot {
	return &domain.UserSnapshot{ID: "acct-1", Email: "ada@example.com", Tier: domain.TierPro, Quota: domain.Quota{Limit: 500}}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/v1/sessions/exchange", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["id_token"] != "good" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		assert.Equal(t, "password", req["provider"])
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "cred-1", Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": snapshot()})
	})
	r.Get("/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "cred-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": snapshot()})
	})
	r.Post("/v1/registrations/confirm", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "incorrect code", "attempts_left": 3})
	})
	r.Post("/v1/registrations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid password", "field": "password", "rule": "min=8"})
	})
	r.Post("/v1/registrations/resend", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pending registration for this email"})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ExchangeStoresCookie(t *testing.T) {
	srv := newServer(t)
	c, err := New(srv.URL+"/", 5*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	u, err := c.Exchange(ctx, "good", domain.ProviderPassword, "")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", u.ID)

	me, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, me.Tier)

	c.ClearCredentials()
	_, err = c.CurrentUser(ctx)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestClient_ExchangeRejected(t *testing.T) {
	srv := newServer(t)
	c, err := New(srv.URL, 5*time.Second)
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), "bad", domain.ProviderPassword, "")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestClient_ErrorMapping(t *testing.T) {
	srv := newServer(t)
	c, err := New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Confirm(ctx, "ada@example.com", "000000")
	var me *domain.MismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 3, me.AttemptsLeft)

	err = c.Register(ctx, "ada@example.com", "Ada", "short", "")
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "password", ve.Field)
	assert.Equal(t, "min=8", ve.Rule)

	err = c.Resend(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestClient_Unreachable(t *testing.T) {
	srv := newServer(t)
	url := srv.URL
	srv.Close()

	c, err := New(url, time.Second)
	require.NoError(t, err)
	_, err = c.CurrentUser(context.Background())
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}
