package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-signup-session/internal/domain"
	"github.com/go-signup-session/internal/pkg/id"
	"github.com/go-signup-session/internal/pkg/validate"
)

const DefaultSessionTTL = 30 * 24 * time.Hour

type ExchangeRequest struct {
	IDToken       string `json:"id_token" validate:"required"`
	Provider      string `json:"provider" validate:"required,oneof=password google custom"`
	PromotionCode string `json:"promotion_code" validate:"omitempty,alphanum,max=32"`
}

type ExchangeResult struct {
	User       *domain.User
	Credential *domain.Credential
	Created    bool
}

// Service backs the session endpoints: it turns IdP identities and confirmed
// registrations into backend sessions and answers who the caller is.
type Service interface {
	Issue(ctx context.Context, u *domain.User) (*domain.Credential, error)
	Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error)
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
	Logout(ctx context.Context, sessionID string) error
	Current(ctx context.Context, sessionID string) (*domain.User, error)
	Refresh(ctx context.Context, sessionID string) (*domain.Credential, *domain.User, error)
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Disable(ctx context.Context, sessionID string) error
}

type accountResolver interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	ResolveIdentity(ctx context.Context, ident domain.Identity, tier domain.TierEffects) (*domain.User, bool, error)
}

type identityVerifier interface {
	Verify(ctx context.Context, provider, token string) (*domain.Identity, error)
}

type promotionValidator interface {
	ValidatePromotionCode(ctx context.Context, code, email string) (*domain.PromotionResult, error)
}

type tokenSigner interface {
	Sign(userID, sessionID string) (string, time.Time, error)
}

type tokenVerifier interface {
	tokenSigner
	VerifySession(token string) (userID, sessionID string, err error)
}

type ServiceDeps struct {
	SessionRepo sessionStore
	Accounts    accountResolver
	Verifier    identityVerifier
	Promotions  promotionValidator
	Tokens      tokenVerifier
	SessionTTL  time.Duration
	Now         func() time.Time
}

type service struct {
	sessionRepo sessionStore
	accounts    accountResolver
	verifier    identityVerifier
	promotions  promotionValidator
	tokens      tokenVerifier
	sessionTTL  time.Duration
	now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		sessionRepo: deps.SessionRepo,
		accounts:    deps.Accounts,
		verifier:    deps.Verifier,
		promotions:  deps.Promotions,
		tokens:      deps.Tokens,
		sessionTTL:  deps.SessionTTL,
		now:         deps.Now,
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = DefaultSessionTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Issue(ctx context.Context, u *domain.User) (*domain.Credential, error) {
	now := s.now().UTC()
	sess := &domain.Session{
		SessionID: id.New(),
		UserID:    u.UserID,
		Enable:    true,
		ExpiresAt: now.Add(s.sessionTTL).Unix(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return nil, err
	}
	token, exp, err := s.tokens.Sign(u.UserID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	if limit := time.Unix(sess.ExpiresAt, 0); exp.After(limit) {
		exp = limit
	}
	sess.User = u
	return &domain.Credential{Token: token, ExpiresAt: exp, Session: sess}, nil
}

func (s *service) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	ident, err := s.verifier.Verify(ctx, req.Provider, req.IDToken)
	if err != nil {
		return nil, fmt.Errorf("identity token rejected: %w", domain.ErrUnauthorized)
	}
	if ident.Email == "" {
		return nil, fmt.Errorf("identity has no email: %w", domain.ErrUnauthorized)
	}
	if !ident.EmailVerified && req.Provider != domain.ProviderCustom {
		return nil, fmt.Errorf("identity email not verified: %w", domain.ErrUnauthorized)
	}

	u, created, err := s.accounts.ResolveIdentity(ctx, *ident, s.signupTier(ctx, req.PromotionCode, ident.Email))
	if err != nil {
		return nil, err
	}
	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrUnauthorized)
	}
	cred, err := s.Issue(ctx, u)
	if err != nil {
		return nil, err
	}
	return &ExchangeResult{User: u, Credential: cred, Created: created}, nil
}

// signupTier only matters when Exchange ends up creating the account.
func (s *service) signupTier(ctx context.Context, code, email string) domain.TierEffects {
	if code == "" || s.promotions == nil {
		return domain.DefaultTier()
	}
	res, err := s.promotions.ValidatePromotionCode(ctx, code, email)
	if err != nil || res == nil || !res.Valid {
		if err != nil {
			slog.Warn("promotion validation failed", "email", email, "err", err)
		}
		return domain.DefaultTier()
	}
	return res.Effects
}

func (s *service) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	userID, sessionID, err := s.tokens.VerifySession(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", domain.ErrUnauthorized)
	}
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("session not found: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if sess.UserID != userID || !sess.Active(s.now()) {
		return nil, fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
	}
	return sess, nil
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Disable(ctx, sessionID)
}

func (s *service) Current(ctx context.Context, sessionID string) (*domain.User, error) {
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active(s.now()) {
		return nil, fmt.Errorf("session inactive: %w", domain.ErrUnauthorized)
	}
	return s.accounts.Get(ctx, sess.UserID)
}

// Refresh rotates the session: the old one is disabled and a new credential issued.
func (s *service) Refresh(ctx context.Context, sessionID string) (*domain.Credential, *domain.User, error) {
	u, err := s.Current(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	cred, err := s.Issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	if err := s.sessionRepo.Disable(ctx, sessionID); err != nil {
		slog.Warn("failed to disable rotated session", "session_id", sessionID, "err", err)
	}
	return cred, u, nil
}
