package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-signup-session/internal/domain"
	"github.com/go-signup-session/internal/pkg/id"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldIdentitySub  = "identity_sub"
	fieldAuthProvider = "auth_provider"
)

// Service creates and looks up accounts. It is the only writer of new users.
type Service interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateAccount(ctx context.Context, payload domain.RegistrationPayload) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	// ResolveIdentity returns the account for an IdP identity, creating one
	// on first sign-in and linking the IdP subject when missing.
	ResolveIdentity(ctx context.Context, ident domain.Identity, tier domain.TierEffects) (*domain.User, bool, error)
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type service struct {
	repo userStore
	now  func() time.Time
}

func NewService(repo userStore) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *service) CreateAccount(ctx context.Context, payload domain.RegistrationPayload) (*domain.User, error) {
	if payload.Version != domain.RegistrationPayloadVersion {
		return nil, fmt.Errorf("unsupported payload version %d: %w", payload.Version, domain.ErrValidation)
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        payload.Email,
		DisplayName:  payload.DisplayName,
		PasswordHash: payload.PasswordHash,
		AuthProvider: domain.ProviderPassword,
		Tier:         payload.Tier,
		Quota:        domain.Quota{Limit: payload.QuotaLimit},
		Capabilities: payload.Capabilities,
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) ResolveIdentity(ctx context.Context, ident domain.Identity, tier domain.TierEffects) (*domain.User, bool, error) {
	email := domain.NormalizeEmail(ident.Email)
	u, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		if u.IdentitySub == "" {
			updates := map[string]interface{}{fieldIdentitySub: ident.Subject}
			if u.AuthProvider == "" {
				updates[fieldAuthProvider] = ident.Provider
			}
			if err := s.repo.Update(ctx, u.UserID, updates); err != nil {
				return nil, false, err
			}
			u.IdentitySub = ident.Subject
		}
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	now := s.now().UTC()
	u = &domain.User{
		UserID:       id.New(),
		Email:        email,
		DisplayName:  ident.DisplayName,
		AuthProvider: ident.Provider,
		IdentitySub:  ident.Subject,
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	u.ApplyTier(tier)
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}
