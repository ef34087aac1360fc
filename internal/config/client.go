package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Client configures cmd/client. Flags override these after parsing.
type Client struct {
	BackendURL  string        `env:"CLIENT_BACKEND_URL"    envDefault:"http://localhost:3000"`
	IdentityURL string        `env:"CLIENT_IDENTITY_URL"   envDefault:"https://identitytoolkit.googleapis.com"`
	IdentityKey string        `env:"CLIENT_IDENTITY_API_KEY"`
	LockFile    string        `env:"CLIENT_LOCK_FILE"`
	SettleDelay time.Duration `env:"CLIENT_SETTLE_DELAY"   envDefault:"2s"`
	LockTTL     time.Duration `env:"CLIENT_LOCK_TTL"       envDefault:"120s"`
	OpTimeout   time.Duration `env:"CLIENT_OP_TIMEOUT"     envDefault:"15s"`
	HTTPTimeout time.Duration `env:"CLIENT_HTTP_TIMEOUT"   envDefault:"10s"`
	LogLevel    string        `env:"CLIENT_LOG_LEVEL"      envDefault:"warn"`
}

// LoadClient parses the client environment. An empty lock file path
// resolves under the user config directory.
func LoadClient() (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LockFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		cfg.LockFile = filepath.Join(dir, "signup-session", "state.json")
	}
	return cfg, nil
}
