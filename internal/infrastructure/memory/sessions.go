package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-signup-session/internal/domain"
)

type SessionRepo struct {
	mu    sync.RWMutex
	items map[string]domain.Session
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{items: map[string]domain.Session{}}
}

func (r *SessionRepo) Put(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	c.User = nil
	r.items[s.SessionID] = c
	return nil
}

func (r *SessionRepo) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return &s, nil
}

func (r *SessionRepo) Disable(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	s.Enable = false
	r.items[sessionID] = s
	return nil
}
