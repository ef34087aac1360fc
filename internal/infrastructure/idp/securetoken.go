package idp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/go-signup-session/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const secureTokenIssuerPrefix = "https://securetoken.google.com/"

// SecureTokenClaims are the claims of an identity-platform ID token.
type SecureTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Firebase      struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
	jwt.RegisteredClaims
}

// SecureTokenVerifier validates RS256 ID tokens issued by the hosted identity
// platform for one project, with signing keys fetched from a JWKS endpoint.
type SecureTokenVerifier struct {
	projectID string
	keyFunc   jwt.Keyfunc
	now       func() time.Time
}

// NewSecureTokenVerifier fetches the JWKS once and keeps it refreshed in the background.
func NewSecureTokenVerifier(projectID, jwksURL string) (*SecureTokenVerifier, error) {
	if projectID == "" {
		return nil, errors.New("identity project id is required")
	}
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			slog.Warn("failed to refresh identity JWKS", "err", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch identity JWKS: %w", err)
	}
	return NewSecureTokenVerifierWithKeyfunc(projectID, jwks.Keyfunc), nil
}

func NewSecureTokenVerifierWithKeyfunc(projectID string, kf jwt.Keyfunc) *SecureTokenVerifier {
	return &SecureTokenVerifier{projectID: projectID, keyFunc: kf, now: time.Now}
}

func (v *SecureTokenVerifier) Verify(_ context.Context, token string) (*domain.Identity, error) {
	var claims SecureTokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(secureTokenIssuerPrefix+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid identity token: %v: %w", err, domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("identity token has no subject: %w", domain.ErrUnauthorized)
	}
	return &domain.Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		DisplayName:   claims.Name,
		Provider:      providerName(claims.Firebase.SignInProvider),
	}, nil
}

func providerName(signInProvider string) string {
	switch signInProvider {
	case "google.com":
		return domain.ProviderGoogle
	case "custom":
		return domain.ProviderCustom
	default:
		return domain.ProviderPassword
	}
}
