package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-signup-session/internal/domain"
)

// UserRepo is an in-memory user store with a unique email index.
type UserRepo struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

func NewUserRepo() *UserRepo {
	return &UserRepo{byID: map[string]domain.User{}, byEmail: map[string]string{}}
}

// Create inserts u, failing with domain.ErrConflict if the email is taken.
func (r *UserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	r.byID[u.UserID] = *u
	r.byEmail[u.Email] = u.UserID
	return nil
}

func (r *UserRepo) Get(_ context.Context, userID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	u := r.byID[id]
	return &u, nil
}

func (r *UserRepo) Update(_ context.Context, userID string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	for k, v := range updates {
		switch k {
		case "identity_sub":
			u.IdentitySub, _ = v.(string)
		case "auth_provider":
			u.AuthProvider, _ = v.(string)
		case "enable":
			u.Enable, _ = v.(bool)
		default:
			return fmt.Errorf("unsupported field %q: %w", k, domain.ErrValidation)
		}
	}
	u.UpdatedAt = time.Now().UTC()
	r.byID[userID] = u
	return nil
}
