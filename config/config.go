// Package config holds the settings for the bundled rule-sets and the
// rule-set loader.  The core engine reads no configuration itself.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from SCANANY_* environment variables.
type Config struct {
	// CacheFile is the BoltDB file for fetched rule-set
	// documents.  Empty means an in-memory cache.
	CacheFile string `env:"SCANANY_CACHE_FILE"`

	// NoCache turns off rule-set document caching altogether.
	NoCache bool `env:"SCANANY_NO_CACHE" envDefault:"false"`

	// LibDir is where relative rule-set and library paths are
	// resolved.
	LibDir string `env:"SCANANY_LIB_DIR" envDefault:"."`

	// FileDir is where the "file" rule resolves relative paths.
	FileDir string `env:"SCANANY_FILE_DIR" envDefault:"."`

	// HTTPTimeout bounds each request made by the "fetch" rule.
	HTTPTimeout time.Duration `env:"SCANANY_HTTP_TIMEOUT" envDefault:"30s"`

	// JSTimeout bounds each execution of the "js" rule.  Zero
	// means no limit beyond the caller's context.
	JSTimeout time.Duration `env:"SCANANY_JS_TIMEOUT" envDefault:"10s"`

	// Debug turns on engine and storage logging.
	Debug bool `env:"SCANANY_DEBUG" envDefault:"false"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns a Config from the environment with defaults applied.
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the Config you'd get with an empty environment.
func Default() *Config {
	return &Config{
		LibDir:      ".",
		FileDir:     ".",
		HTTPTimeout: 30 * time.Second,
		JSTimeout:   10 * time.Second,
	}
}
