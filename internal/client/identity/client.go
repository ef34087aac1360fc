// Package identity is a REST client for an Identity Toolkit style identity
// provider. It keeps the signed-in identity in memory and pushes every change
// to its subscribers.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/go-signup-session/internal/client/reconciler"
	"github.com/go-signup-session/internal/domain"
)

// ErrRejected wraps every error the provider reports for a sign-in attempt.
var ErrRejected = errors.New("identity provider rejected sign-in")

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu        sync.Mutex
	current   *reconciler.Identity
	listeners map[int]func(*reconciler.Identity)
	nextID    int
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		http:      &http.Client{Timeout: timeout},
		listeners: map[int]func(*reconciler.Identity){},
	}
}

// Subscribe calls fn with the current identity and then on every change.
func (c *Client) Subscribe(fn func(*reconciler.Identity)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	cur := copyIdentity(c.current)
	c.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Current returns the signed-in identity, or nil.
func (c *Client) Current() *reconciler.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyIdentity(c.current)
}

func (c *Client) SignOut(context.Context) error {
	c.set(nil)
	return nil
}

type signInResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	var res signInResponse
	err := c.post(ctx, "accounts:signInWithPassword", map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &res)
	if err != nil {
		return err
	}
	return c.signedIn(res, domain.ProviderPassword)
}

func (c *Client) SignInWithCustomToken(ctx context.Context, token string) error {
	var res signInResponse
	err := c.post(ctx, "accounts:signInWithCustomToken", map[string]interface{}{
		"token":             token,
		"returnSecureToken": true,
	}, &res)
	if err != nil {
		return err
	}
	return c.signedIn(res, domain.ProviderCustom)
}

// signedIn fills whatever the response omitted from the ID token's claims.
// The backend verifies the token; the claims here only label the identity.
func (c *Client) signedIn(res signInResponse, provider string) error {
	if res.IDToken == "" {
		return fmt.Errorf("%w: no id token in response", ErrRejected)
	}
	if res.LocalID == "" || res.Email == "" {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(res.IDToken, claims); err != nil {
			return fmt.Errorf("%w: malformed id token: %v", ErrRejected, err)
		}
		if res.LocalID == "" {
			res.LocalID, _ = claims.GetSubject()
		}
		if res.Email == "" {
			res.Email, _ = claims["email"].(string)
		}
	}
	c.set(&reconciler.Identity{UID: res.LocalID, Email: res.Email, Token: res.IDToken, Provider: provider})
	return nil
}

func (c *Client) set(id *reconciler.Identity) {
	c.mu.Lock()
	c.current = id
	fns := make([]func(*reconciler.Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

func (c *Client) post(ctx context.Context, method string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	u := c.baseURL + "/v1/" + method + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error.Message == "" {
			e.Error.Message = resp.Status
		}
		return fmt.Errorf("%w: %s", ErrRejected, e.Error.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}

func copyIdentity(id *reconciler.Identity) *reconciler.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
