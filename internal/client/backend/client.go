// Package backend is the HTTP client for the server's registration and
// session endpoints. The session credential lives only in the client's
// cookie jar.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/go-signup-session/internal/domain"
)

// Client talks to the API under baseURL.
type Client struct {
	baseURL string
	timeout time.Duration

	mu   sync.Mutex
	http *http.Client
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
	if err := c.resetJar(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) resetJar() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("cookie jar: %w", err)
	}
	c.mu.Lock()
	c.http = &http.Client{Jar: jar, Timeout: c.timeout}
	c.mu.Unlock()
	return nil
}

type userEnvelope struct {
	AccountID string               `json:"account_id"`
	User      *domain.UserSnapshot `json:"user"`
	Created   bool                 `json:"created"`
}

type errorEnvelope struct {
	Error        string `json:"error"`
	Field        string `json:"field"`
	Rule         string `json:"rule"`
	AttemptsLeft *int   `json:"attempts_left"`
}

// Register starts a pending registration. The code arrives out of band.
func (c *Client) Register(ctx context.Context, email, displayName, password, promotionCode string) error {
	body := map[string]string{
		"email":          email,
		"display_name":   displayName,
		"password":       password,
		"promotion_code": promotionCode,
	}
	return c.do(ctx, http.MethodPost, "/v1/registrations", body, nil)
}

// Confirm redeems a one-time code; on success the session cookie is stored.
func (c *Client) Confirm(ctx context.Context, email, code string) (*domain.UserSnapshot, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/registrations/confirm", map[string]string{"email": email, "code": code}, &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

func (c *Client) Resend(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/v1/registrations/resend", map[string]string{"email": email}, nil)
}

// Exchange trades an identity provider token for a backend session.
func (c *Client) Exchange(ctx context.Context, idToken, provider, promotionCode string) (*domain.UserSnapshot, error) {
	body := map[string]string{"id_token": idToken, "provider": provider, "promotion_code": promotionCode}
	var env userEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/exchange", body, &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, fmt.Errorf("exchange: empty user: %w", domain.ErrUpstream)
	}
	return env.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/logout", struct{}{}, nil)
}

func (c *Client) CurrentUser(ctx context.Context) (*domain.UserSnapshot, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/users/me", nil, &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

func (c *Client) Refresh(ctx context.Context) (*domain.UserSnapshot, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/refresh", struct{}{}, &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

// ClearCredentials drops every cookie by replacing the jar.
func (c *Client) ClearCredentials() {
	// cookiejar.New only fails on a bad Options value, which is constant here.
	_ = c.resetJar()
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.http
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// decodeError turns a non-2xx response back into the domain error the
// server mapped it from.
func decodeError(resp *http.Response) error {
	var env errorEnvelope
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env)
	msg := env.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		if env.Field != "" {
			return &domain.ValidationError{Field: env.Field, Rule: env.Rule}
		}
		sentinel = domain.ErrValidation
	case http.StatusUnauthorized:
		if env.AttemptsLeft != nil {
			return &domain.MismatchError{AttemptsLeft: *env.AttemptsLeft}
		}
		sentinel = domain.ErrUnauthorized
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusConflict:
		sentinel = domain.ErrConflict
	case http.StatusGone:
		sentinel = domain.ErrExpired
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	default:
		sentinel = domain.ErrUpstream
	}
	return fmt.Errorf("%s: %w", msg, sentinel)
}
