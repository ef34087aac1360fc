package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-signup-session/internal/application/account"
	"github.com/go-signup-session/internal/application/registration"
	"github.com/go-signup-session/internal/application/session"
	"github.com/go-signup-session/internal/application/tier"
	"github.com/go-signup-session/internal/config"
	"github.com/go-signup-session/internal/domain"
	"github.com/go-signup-session/internal/infrastructure/idp"
	jwtinfra "github.com/go-signup-session/internal/infrastructure/jwt"
	"github.com/go-signup-session/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) Deliver(_ context.Context, email, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[email] = code
	return nil
}

func (i *inbox) code(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}

type staticVerifier map[string]*domain.Identity

func (v staticVerifier) Verify(_ context.Context, token string) (*domain.Identity, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return nil, domain.ErrUnauthorized
}

type testServer struct {
	srv   *httptest.Server
	inbox *inbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := jwtinfra.NewProviderFromKey(key, &key.PublicKey, time.Hour)

	users := memory.NewUserRepo()
	accounts := account.NewService(users)
	promos := tier.NewService(map[string]string{"LAUNCH": domain.TierPro})
	verifiers := idp.NewRegistry().Register(domain.ProviderGoogle, staticVerifier{
		"google-token": {Subject: "g-1", Email: "g@example.com", EmailVerified: true, DisplayName: "G", Provider: domain.ProviderGoogle},
	})
	sessions := session.NewService(session.ServiceDeps{
		SessionRepo: memory.NewSessionRepo(),
		Accounts:    accounts,
		Verifier:    verifiers,
		Promotions:  promos,
		Tokens:      tokens,
	})
	box := &inbox{codes: map[string]string{}}
	regs := registration.NewService(registration.ServiceDeps{
		Store:      memory.NewRegistrationStore(),
		Deliverer:  box,
		Accounts:   accounts,
		Promotions: promos,
		Sessions:   sessions,
		HashCost:   bcrypt.MinCost,
	})

	cfg := &config.Config{AppEnv: "development", SessionCookieName: "session", AllowedOrigins: []string{"*"}}
	srv := httptest.NewServer(NewRouter(cfg, &Deps{Registrations: regs, Sessions: sessions}))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, inbox: box}
}

func (ts *testServer) post(t *testing.T, path string, body interface{}, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) get(t *testing.T, path string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRegistrationFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/v1/registrations", map[string]string{
		"email": "  New@Example.com ", "display_name": "New", "password": "hunter22", "promotion_code": "LAUNCH",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "new@example.com", body["email"])
	assert.Equal(t, true, body["pending"])
	assert.NotContains(t, body, "code")

	code := ts.inbox.code("new@example.com")
	require.Len(t, code, 6)

	resp = ts.post(t, "/v1/registrations/confirm", map[string]string{"email": "new@example.com", "code": "000000"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 4, decodeBody(t, resp)["attempts_left"])

	resp = ts.post(t, "/v1/registrations/confirm", map[string]string{"email": "new@example.com", "code": code})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(t, resp)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 30*24*60*60, cookie.MaxAge)
	user := decodeBody(t, resp)["user"].(map[string]interface{})
	assert.Equal(t, domain.TierPro, user["tier"])

	resp = ts.post(t, "/v1/registrations/confirm", map[string]string{"email": "new@example.com", "code": code})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.get(t, "/v1/users/me", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "new@example.com", decodeBody(t, resp)["user"].(map[string]interface{})["email"])

	resp = ts.post(t, "/v1/registrations", map[string]string{
		"email": "new@example.com", "display_name": "Again", "password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegistrationValidationNamesField(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.post(t, "/v1/registrations", map[string]string{
		"email": "a@b.com", "display_name": "A", "password": "lettersonly",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "password", decodeBody(t, resp)["field"])
}

func TestResendUnknownEmail(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.post(t, "/v1/registrations/resend", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExchangeLogoutAndRefresh(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/v1/sessions/exchange", map[string]string{"id_token": "google-token", "provider": "google"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := sessionCookie(t, resp)
	assert.Equal(t, true, decodeBody(t, resp)["created"])

	resp = ts.post(t, "/v1/sessions/refresh", nil, first)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := sessionCookie(t, resp)
	assert.NotEqual(t, first.Value, second.Value)

	assert.Equal(t, http.StatusUnauthorized, ts.get(t, "/v1/users/me", first).StatusCode)

	resp = ts.post(t, "/v1/sessions/logout", nil, second)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, -1, sessionCookie(t, resp).MaxAge)
	assert.Equal(t, http.StatusUnauthorized, ts.get(t, "/v1/users/me", second).StatusCode)

	// Logging out without a live session still succeeds.
	assert.Equal(t, http.StatusOK, ts.post(t, "/v1/sessions/logout", nil).StatusCode)
}

func TestExchangeRejectsUnknownToken(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.post(t, "/v1/sessions/exchange", map[string]string{"id_token": "forged", "provider": "google"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.get(t, "/v1/health").StatusCode)
}
