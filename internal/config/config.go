// Package config loads runtime settings for the dashboard API. Defaults
// live in code, an optional YAML file overrides them, and DQ_* environment
// variables override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "dq"

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "DQ_CONFIG_FILE"

type Config struct {
	Port        int    `yaml:"port" envconfig:"PORT"`
	DatabaseURL string `yaml:"database_url" envconfig:"DATABASE_URL"`

	SessionSecret         string `yaml:"session_secret" envconfig:"SESSION_SECRET"`
	SessionTimeoutSeconds int    `yaml:"session_timeout_seconds" envconfig:"SESSION_TIMEOUT_SECONDS"`
	CookieSecure          bool   `yaml:"cookie_secure" envconfig:"COOKIE_SECURE"`

	AllowedOrigin   string  `yaml:"allowed_origin" envconfig:"ALLOWED_ORIGIN"`
	MaxBodyBytes    int64   `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
	LoginRatePerSec float64 `yaml:"login_rate_per_sec" envconfig:"LOGIN_RATE_PER_SEC"`
	LoginRateBurst  int     `yaml:"login_rate_burst" envconfig:"LOGIN_RATE_BURST"`

	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds" envconfig:"SHUTDOWN_GRACE_SECONDS"`
}

// Validation happens after all layers are applied, so a value may arrive
// from any of them; envconfig's own required/default tags only see the
// environment and are deliberately not used.
func defaults() Config {
	return Config{
		Port:                  8080,
		SessionTimeoutSeconds: int((24 * time.Hour).Seconds()),
		MaxBodyBytes:          1 << 20,
		LoginRatePerSec:       1,
		LoginRateBurst:        5,
		ShutdownGraceSeconds:  10,
	}
}

// Load resolves the configuration: defaults, then the YAML file named by
// DQ_CONFIG_FILE when set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: database_url is required")
	}
	if c.SessionSecret == "" {
		return errors.New("config: session_secret is required")
	}
	if len(c.SessionSecret) < 16 {
		return errors.New("config: session_secret must be at least 16 bytes")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.SessionTimeoutSeconds <= 0 {
		return errors.New("config: session_timeout_seconds must be positive")
	}
	if c.LoginRatePerSec <= 0 || c.LoginRateBurst < 1 {
		return errors.New("config: login rate limit must allow at least one attempt")
	}
	if c.MaxBodyBytes < 1 {
		return errors.New("config: max_body_bytes must be positive")
	}
	return nil
}

// SessionTTL returns the session timeout as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// ShutdownGrace returns how long to wait for in-flight requests on shutdown.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
