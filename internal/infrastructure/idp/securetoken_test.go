package idp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/go-signup-session/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signIdentityToken(t *testing.T, key *rsa.PrivateKey, project string, mutate func(*SecureTokenClaims)) string {
	t.Helper()
	now := time.Now()
	c := SecureTokenClaims{
		Email:         "a@b.com",
		EmailVerified: true,
		Name:          "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    secureTokenIssuerPrefix + project,
			Audience:  jwt.ClaimStrings{project},
			Subject:   "sub-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	c.Firebase.SignInProvider = "password"
	if mutate != nil {
		mutate(&c)
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, c).SignedString(key)
	require.NoError(t, err)
	return s
}

func newTestVerifier(t *testing.T) (*SecureTokenVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewSecureTokenVerifierWithKeyfunc("demo-project", func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	return v, key
}

func TestSecureTokenVerifier_Valid(t *testing.T) {
	v, key := newTestVerifier(t)
	ident, err := v.Verify(context.Background(), signIdentityToken(t, key, "demo-project", nil))
	require.NoError(t, err)
	assert.Equal(t, "sub-1", ident.Subject)
	assert.Equal(t, "a@b.com", ident.Email)
	assert.True(t, ident.EmailVerified)
	assert.Equal(t, domain.ProviderPassword, ident.Provider)
}

func TestSecureTokenVerifier_MapsProvider(t *testing.T) {
	v, key := newTestVerifier(t)
	tok := signIdentityToken(t, key, "demo-project", func(c *SecureTokenClaims) {
		c.Firebase.SignInProvider = "google.com"
	})
	ident, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGoogle, ident.Provider)
}

func TestSecureTokenVerifier_Rejects(t *testing.T) {
	v, key := newTestVerifier(t)
	cases := map[string]string{
		"wrong project": signIdentityToken(t, key, "other-project", nil),
		"expired": signIdentityToken(t, key, "demo-project", func(c *SecureTokenClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}),
		"no subject": signIdentityToken(t, key, "demo-project", func(c *SecureTokenClaims) {
			c.Subject = ""
		}),
		"garbage": "not.a.token",
	}
	for name, tok := range cases {
		_, err := v.Verify(context.Background(), tok)
		assert.True(t, errors.Is(err, domain.ErrUnauthorized), name)
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := NewRegistry().Verify(context.Background(), "github", "tok")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}
