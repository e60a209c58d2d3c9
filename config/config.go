// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the session needs to come up.
type Config struct {
	// BaseURL is the root of the order/cart gateway API.
	BaseURL string `env:"ZAIKA_API_URL" envDefault:"http://localhost:8000/api"`

	// StateDir holds the durable session store (drafts, credential, bump
	// marker). Defaults to the user config dir when unset.
	StateDir string `env:"ZAIKA_STATE_DIR"`

	// PollInterval bounds how stale the order view can get without any
	// invalidation signal.
	PollInterval time.Duration `env:"ZAIKA_POLL_INTERVAL" envDefault:"30s"`

	// WatchInterval is how often the cross-context bump marker is checked.
	WatchInterval time.Duration `env:"ZAIKA_WATCH_INTERVAL" envDefault:"500ms"`
}

// Load parses the environment and fills in computed defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(base, "zaika-orderclient")
	}
	return &cfg, nil
}
