// Package config loads witsync settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/witsync/internal/engine"
)

// Config holds all configuration for witsync.
// Environment variables always override YAML values for fields that support both.
// The personal access token must only come from the environment.
type Config struct {
	// Remote organization, e.g. https://dev.azure.com/acme
	OrgURL  string `yaml:"org_url" env:"WITSYNC_ORG_URL" env-default:""`
	Project string `yaml:"project" env:"WITSYNC_PROJECT" env-default:""`
	PAT     string `yaml:"-" env:"WITSYNC_PAT"` // Secret - not in YAML

	// SandboxDB is a local SQLite sandbox used instead of the organization.
	SandboxDB string `yaml:"sandbox_db" env:"WITSYNC_SANDBOX_DB" env-default:""`

	SaveMode string        `yaml:"save_mode" env:"WITSYNC_SAVE_MODE" env-default:"TwoPhases"`
	LogLevel string        `yaml:"log_level" env:"WITSYNC_LOG_LEVEL" env-default:"info"`
	Timeout  time.Duration `yaml:"timeout" env:"WITSYNC_TIMEOUT" env-default:"30s"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig controls the caller-level retry around a whole commit.
type RetryConfig struct {
	// Attempts is the total number of commit attempts; 1 disables retry.
	Attempts        int           `yaml:"attempts" env:"WITSYNC_RETRY_ATTEMPTS" env-default:"3"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"WITSYNC_RETRY_INITIAL_INTERVAL" env-default:"500ms"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"WITSYNC_RETRY_MAX_INTERVAL" env-default:"10s"`
}

// Load reads configuration from path with environment variable overrides.
// An empty path reads the environment only. Overrides run before
// validation, so command-line flags can fill in required settings.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field values and their combinations.
func (c *Config) Validate() error {
	if _, err := engine.ParseSaveMode(c.SaveMode); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}

	if c.SandboxDB != "" {
		return nil
	}
	if c.OrgURL == "" {
		return fmt.Errorf("either org_url or sandbox_db must be set")
	}
	u, err := url.Parse(c.OrgURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("org_url %q is not an absolute URL", c.OrgURL)
	}
	if c.Project == "" {
		return fmt.Errorf("project is required with org_url")
	}
	if c.PAT == "" {
		return fmt.Errorf("WITSYNC_PAT is required with org_url")
	}
	return nil
}

// Mode returns the parsed save mode. Validate must have succeeded.
func (c *Config) Mode() engine.SaveMode {
	m, _ := engine.ParseSaveMode(c.SaveMode)
	return m
}

// Level returns the parsed log level, info when unset or invalid.
func (c *Config) Level() zapcore.Level {
	l, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// UsesSandbox reports whether commands run against the local sandbox.
func (c *Config) UsesSandbox() bool {
	return c.SandboxDB != ""
}
