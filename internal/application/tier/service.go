package tier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-signup-session/internal/domain"
)

// Service resolves promotion codes to tier upgrades from a fixed catalog.
type Service struct {
	codes map[string]string // upper-cased code -> tier name
}

func NewService(codes map[string]string) *Service {
	c := make(map[string]string, len(codes))
	for k, v := range codes {
		if _, ok := domain.LookupTier(v); !ok {
			slog.Warn("ignoring promotion code with unknown tier", "code", k, "tier", v)
			continue
		}
		c[strings.ToUpper(k)] = v
	}
	return &Service{codes: c}
}

// ValidatePromotionCode reports whether code grants a tier. Unknown codes are
// not errors; they return an invalid result.
func (s *Service) ValidatePromotionCode(_ context.Context, code, email string) (*domain.PromotionResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("empty promotion code: %w", domain.ErrValidation)
	}
	name, ok := s.codes[code]
	if !ok {
		slog.Info("unknown promotion code", "email", email)
		return &domain.PromotionResult{Valid: false}, nil
	}
	effects, _ := domain.LookupTier(name)
	return &domain.PromotionResult{Valid: true, Effects: effects}, nil
}
