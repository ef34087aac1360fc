package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.Registration.CodeTTL)
	assert.Equal(t, 10*time.Minute, cfg.Registration.EvictAfter)
	assert.Equal(t, 5, cfg.Registration.MaxAttempts)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REGISTRATION_CODE_TTL", "90s")
	t.Setenv("REGISTRATION_MAX_ATTEMPTS", "3")
	t.Setenv("PROMOTION_CODES", "launch:pro, studio10:studio,broken")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, ,192.168.1.1")
	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.Registration.CodeTTL)
	assert.Equal(t, 3, cfg.Registration.MaxAttempts)
	assert.Equal(t, map[string]string{"LAUNCH": "pro", "STUDIO10": "studio"}, cfg.PromotionCodes)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.TrustedProxies)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")
	assert.Equal(t, 30*24*time.Hour, Load().SessionTTL)
}
