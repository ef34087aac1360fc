package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-signup-session/internal/domain"
)

// RegistrationStore keeps pending registrations in process memory.
// A single mutex makes every Update atomic per key.
type RegistrationStore struct {
	mu    sync.Mutex
	items map[string]domain.PendingRegistration
}

func NewRegistrationStore() *RegistrationStore {
	return &RegistrationStore{items: make(map[string]domain.PendingRegistration)}
}

func (s *RegistrationStore) Put(_ context.Context, p *domain.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Revision = s.items[p.Email].Revision + 1
	s.items[p.Email] = *p
	return nil
}

func (s *RegistrationStore) Get(_ context.Context, email string) (*domain.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[email]
	if !ok {
		return nil, fmt.Errorf("pending registration not found: %w", domain.ErrNotFound)
	}
	return &p, nil
}

func (s *RegistrationStore) Update(_ context.Context, email string, fn domain.MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[email]
	if !ok {
		return fmt.Errorf("pending registration not found: %w", domain.ErrNotFound)
	}
	next := cur
	m, err := fn(&next)
	switch m {
	case domain.MutationSave:
		next.Revision = cur.Revision + 1
		s.items[email] = next
	case domain.MutationDelete:
		delete(s.items, email)
	}
	return err
}

func (s *RegistrationStore) Restore(_ context.Context, p *domain.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[p.Email]; ok {
		return fmt.Errorf("pending registration exists: %w", domain.ErrConflict)
	}
	s.items[p.Email] = *p
	return nil
}

func (s *RegistrationStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for email, p := range s.items {
		if p.EvictAt <= now.Unix() {
			delete(s.items, email)
			n++
		}
	}
	return n, nil
}
