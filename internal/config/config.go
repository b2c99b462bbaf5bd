// Package config loads service configuration from the environment into an
// explicit struct. Signing keys are injected from here into the token
// issuer at construction; nothing else in the tree reads the process
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Development defaults ship so the service runs out of the box. Validate
// rejects them outside development.
const (
	DevAccessSigningKey  = "taskhive-dev-access-signing-key-not-for-production"
	DevRefreshSigningKey = "taskhive-dev-refresh-signing-key-not-for-production"

	minSigningKeyLen = 32
)

// Config carries everything the auth service needs at startup.
type Config struct {
	Environment string `env:"TASKHIVE_ENV" envDefault:"development"`
	Addr        string `env:"TASKHIVE_ADDR" envDefault:":8080"`
	PGDSN       string `env:"TASKHIVE_PG_DSN"`

	AccessSigningKey  string        `env:"TASKHIVE_ACCESS_SIGNING_KEY" envDefault:"taskhive-dev-access-signing-key-not-for-production"`
	RefreshSigningKey string        `env:"TASKHIVE_REFRESH_SIGNING_KEY" envDefault:"taskhive-dev-refresh-signing-key-not-for-production"`
	AccessTTL         time.Duration `env:"TASKHIVE_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL        time.Duration `env:"TASKHIVE_REFRESH_TTL" envDefault:"168h"`

	TOTPIssuer string `env:"TASKHIVE_TOTP_ISSUER" envDefault:"TaskHive"`

	LoginAttemptsPerMinute int `env:"TASKHIVE_LOGIN_ATTEMPTS_PER_MINUTE" envDefault:"10"`

	SweepInterval time.Duration `env:"TASKHIVE_TOKEN_SWEEP_INTERVAL" envDefault:"1h"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Validate rejects configurations that must not reach production: the
// shipped development signing keys and keys too short to resist brute
// force.
func (c *Config) Validate() error {
	if c.AccessSigningKey == c.RefreshSigningKey {
		return fmt.Errorf("config: access and refresh signing keys must differ")
	}
	if !c.Production() {
		return nil
	}
	for name, key := range map[string]string{
		"TASKHIVE_ACCESS_SIGNING_KEY":  c.AccessSigningKey,
		"TASKHIVE_REFRESH_SIGNING_KEY": c.RefreshSigningKey,
	} {
		if key == DevAccessSigningKey || key == DevRefreshSigningKey {
			return fmt.Errorf("config: %s is the development default, unsuitable for production", name)
		}
		if len(key) < minSigningKeyLen {
			return fmt.Errorf("config: %s must be at least %d bytes", name, minSigningKeyLen)
		}
	}
	if c.PGDSN == "" {
		return fmt.Errorf("config: TASKHIVE_PG_DSN is required in production")
	}
	return nil
}
