package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClient_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.BackendURL)
	assert.Equal(t, 2*time.Second, cfg.SettleDelay)
	assert.Equal(t, 120*time.Second, cfg.LockTTL)
	assert.Equal(t, "state.json", filepath.Base(cfg.LockFile))
}

func TestLoadClient_Overrides(t *testing.T) {
	t.Setenv("CLIENT_BACKEND_URL", "https://api.example.com")
	t.Setenv("CLIENT_LOCK_FILE", "/tmp/lock.json")
	t.Setenv("CLIENT_SETTLE_DELAY", "500ms")
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.BackendURL)
	assert.Equal(t, "/tmp/lock.json", cfg.LockFile)
	assert.Equal(t, 500*time.Millisecond, cfg.SettleDelay)
}

func TestLoadClient_BadDuration(t *testing.T) {
	t.Setenv("CLIENT_LOCK_TTL", "soon")
	_, err := LoadClient()
	assert.Error(t, err)
}
