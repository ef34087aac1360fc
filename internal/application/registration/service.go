package registration

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-signup-session/internal/domain"
	"github.com/go-signup-session/internal/pkg/otp"
	"github.com/go-signup-session/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCodeTTL     = 5 * time.Minute
	DefaultEvictAfter  = 10 * time.Minute
	DefaultMaxAttempts = 5
)

type IssueRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	DisplayName   string `json:"display_name" validate:"required,max=64"`
	Password      string `json:"password" validate:"required,min=8,bcrypt_len,has_letter,has_digit"`
	PromotionCode string `json:"promotion_code" validate:"omitempty,alphanum,max=32"`
}

type IssueResult struct {
	Email   string `json:"email"`
	Pending bool   `json:"pending"`
}

type ConfirmResult struct {
	AccountID  string
	User       *domain.User
	Credential *domain.Credential
}

type Service interface {
	IssueRegistration(ctx context.Context, req IssueRequest) (*IssueResult, error)
	ConfirmRegistration(ctx context.Context, email, code string) (*ConfirmResult, error)
	ReissueRegistration(ctx context.Context, email string) error
}

// Store persists pending registrations, one per normalized email.
type Store interface {
	Put(ctx context.Context, p *domain.PendingRegistration) error
	// Update returns domain.ErrNotFound without calling fn when no record exists.
	Update(ctx context.Context, email string, fn domain.MutateFunc) error
	// Restore writes p only if no record exists for its email.
	Restore(ctx context.Context, p *domain.PendingRegistration) error
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Deliverer sends a code to the user outside the HTTP response.
type Deliverer interface {
	Deliver(ctx context.Context, email, code string) error
}

type accountCreator interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateAccount(ctx context.Context, payload domain.RegistrationPayload) (*domain.User, error)
}

type promotionValidator interface {
	ValidatePromotionCode(ctx context.Context, code, email string) (*domain.PromotionResult, error)
}

type sessionIssuer interface {
	Issue(ctx context.Context, u *domain.User) (*domain.Credential, error)
}

type ServiceDeps struct {
	Store       Store
	Deliverer   Deliverer
	Accounts    accountCreator
	Promotions  promotionValidator
	Sessions    sessionIssuer
	CodeTTL     time.Duration
	EvictAfter  time.Duration
	MaxAttempts int
	HashCost    int
	Now         func() time.Time
}

type service struct {
	store       Store
	deliverer   Deliverer
	accounts    accountCreator
	promotions  promotionValidator
	sessions    sessionIssuer
	codeTTL     time.Duration
	evictAfter  time.Duration
	maxAttempts int
	hashCost    int
	now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		store:       deps.Store,
		deliverer:   deps.Deliverer,
		accounts:    deps.Accounts,
		promotions:  deps.Promotions,
		sessions:    deps.Sessions,
		codeTTL:     deps.CodeTTL,
		evictAfter:  deps.EvictAfter,
		maxAttempts: deps.MaxAttempts,
		hashCost:    deps.HashCost,
		now:         deps.Now,
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.evictAfter <= 0 {
		s.evictAfter = DefaultEvictAfter
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.hashCost == 0 {
		s.hashCost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) IssueRegistration(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	taken, err := s.accounts.EmailTaken(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("look up account: %w", domain.ErrUpstream)
	}
	if taken {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, err
	}
	effects := s.resolveTier(ctx, req.PromotionCode, req.Email)
	payload := domain.RegistrationPayload{
		Version:      domain.RegistrationPayloadVersion,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Tier:         effects.Tier,
		QuotaLimit:   effects.QuotaLimit,
		Capabilities: effects.Capabilities,
	}
	if effects.Tier != domain.TierFree {
		payload.PromotionCode = req.PromotionCode
	}

	code, err := otp.Generate()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &domain.PendingRegistration{
		Email:     req.Email,
		Code:      code,
		ExpiresAt: now.Add(s.codeTTL),
		EvictAt:   now.Add(s.evictAfter).Unix(),
		Payload:   payload,
		CreatedAt: now,
	}
	if err := s.store.Put(ctx, p); err != nil {
		return nil, err
	}
	s.deliver(ctx, req.Email, code)
	return &IssueResult{Email: req.Email, Pending: true}, nil
}

func (s *service) ConfirmRegistration(ctx context.Context, email, code string) (*ConfirmResult, error) {
	email = domain.NormalizeEmail(email)
	var claimed *domain.PendingRegistration
	err := s.store.Update(ctx, email, func(p *domain.PendingRegistration) (domain.Mutation, error) {
		if s.now().After(p.ExpiresAt) {
			return domain.MutationDelete, fmt.Errorf("code expired: %w", domain.ErrExpired)
		}
		if p.Attempts >= s.maxAttempts {
			return domain.MutationDelete, fmt.Errorf("verification locked: %w", domain.ErrRateLimited)
		}
		if subtle.ConstantTimeCompare([]byte(p.Code), []byte(code)) != 1 {
			p.Attempts++
			return domain.MutationSave, &domain.MismatchError{AttemptsLeft: s.maxAttempts - p.Attempts}
		}
		c := *p
		claimed = &c
		return domain.MutationDelete, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no pending registration: %w", domain.ErrNotFound)
		}
		return nil, err
	}

	u, err := s.accounts.CreateAccount(ctx, claimed.Payload)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		slog.Error("account creation failed", "email", email, "err", err)
		if rErr := s.store.Restore(ctx, claimed); rErr != nil {
			slog.Warn("failed to restore pending registration", "email", email, "err", rErr)
		}
		return nil, fmt.Errorf("create account: %w", domain.ErrUpstream)
	}

	cred, err := s.sessions.Issue(ctx, u)
	if err != nil {
		slog.Error("session issuance failed", "user_id", u.UserID, "err", err)
		return nil, fmt.Errorf("issue session: %w", domain.ErrUpstream)
	}
	return &ConfirmResult{AccountID: u.UserID, User: u, Credential: cred}, nil
}

func (s *service) ReissueRegistration(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	var code string
	err := s.store.Update(ctx, email, func(p *domain.PendingRegistration) (domain.Mutation, error) {
		next, err := otp.Generate()
		for err == nil && next == p.Code {
			next, err = otp.Generate()
		}
		if err != nil {
			return domain.MutationKeep, err
		}
		code = next
		p.Code = next
		p.ExpiresAt = s.now().UTC().Add(s.codeTTL)
		p.Attempts = 0
		return domain.MutationSave, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no pending registration: %w", domain.ErrNotFound)
		}
		return err
	}
	s.deliver(ctx, email, code)
	return nil
}

// resolveTier never fails: any problem with the promotion leaves the free tier.
func (s *service) resolveTier(ctx context.Context, code, email string) domain.TierEffects {
	if code == "" || s.promotions == nil {
		return domain.DefaultTier()
	}
	res, err := s.promotions.ValidatePromotionCode(ctx, code, email)
	if err != nil {
		slog.Warn("promotion validation failed", "email", email, "err", err)
		return domain.DefaultTier()
	}
	if res == nil || !res.Valid {
		return domain.DefaultTier()
	}
	return res.Effects
}

func (s *service) deliver(ctx context.Context, email, code string) {
	if err := s.deliverer.Deliver(ctx, email, code); err != nil {
		slog.Warn("code delivery failed", "email", email, "err", fmt.Errorf("%w: %v", domain.ErrDelivery, err))
	}
}
