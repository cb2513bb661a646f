// Package config loads the server configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`
	// Mailbox is the capacity of every lobby and client mailbox.
	Mailbox int `env:"MAILBOX_SIZE" envDefault:"8"`
	// PhaseTimeout bounds every vote and night turn. Zero disables it.
	PhaseTimeout time.Duration `env:"PHASE_TIMEOUT" envDefault:"5m"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	Dev          bool          `env:"DEV" envDefault:"false"`
	// DatabaseURL enables the game journal when set.
	DatabaseURL    string   `env:"DATABASE_URL"`
	OriginPatterns []string `env:"ORIGIN_PATTERNS" envSeparator:","`
}

// Load reads envFile, if given and present, into the environment without
// overriding variables that are already set, then parses the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return Parse()
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("ADDR must not be empty"))
	}
	if c.Mailbox <= 0 {
		err = multierr.Append(err, fmt.Errorf("MAILBOX_SIZE must be positive, got %d", c.Mailbox))
	}
	if c.PhaseTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("PHASE_TIMEOUT must not be negative, got %s", c.PhaseTimeout))
	}
	return err
}
