package idp

import (
	"context"
	"fmt"

	"github.com/go-signup-session/internal/domain"
	"google.golang.org/api/idtoken"
)

// GoogleVerifier verifies Google ID tokens against a specific client ID.
type GoogleVerifier struct {
	clientID string
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID}
}

// Verify validates the Google ID token and returns the asserted identity.
// Returns a domain.ErrUnauthorized-wrapped error if the token is invalid.
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	p, err := idtoken.Validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid google token: %w", domain.ErrUnauthorized)
	}
	email, _ := p.Claims["email"].(string)
	emailVerified, _ := p.Claims["email_verified"].(bool)
	name, _ := p.Claims["name"].(string)
	return &domain.Identity{
		Subject:       p.Subject,
		Email:         email,
		EmailVerified: emailVerified,
		DisplayName:   name,
		Provider:      domain.ProviderGoogle,
	}, nil
}
