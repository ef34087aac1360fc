package idp

import (
	"context"
	"fmt"

	"github.com/go-signup-session/internal/domain"
)

// TokenVerifier checks one kind of identity token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// Registry routes an exchange to the verifier registered for its provider.
type Registry struct {
	verifiers map[string]TokenVerifier
}

func NewRegistry() *Registry {
	return &Registry{verifiers: map[string]TokenVerifier{}}
}

// Register binds provider to v, replacing any previous binding.
func (r *Registry) Register(provider string, v TokenVerifier) *Registry {
	r.verifiers[provider] = v
	return r
}

func (r *Registry) Verify(ctx context.Context, provider, token string) (*domain.Identity, error) {
	v, ok := r.verifiers[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q: %w", provider, domain.ErrUnauthorized)
	}
	return v.Verify(ctx, token)
}
