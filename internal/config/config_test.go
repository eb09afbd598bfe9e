package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/roach88/witsync/internal/engine"
)

// clearEnv unsets every variable Load reads so the host environment does not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"WITSYNC_ORG_URL", "WITSYNC_PROJECT", "WITSYNC_PAT", "WITSYNC_SANDBOX_DB",
		"WITSYNC_SAVE_MODE", "WITSYNC_LOG_LEVEL", "WITSYNC_TIMEOUT",
		"WITSYNC_RETRY_ATTEMPTS", "WITSYNC_RETRY_INITIAL_INTERVAL", "WITSYNC_RETRY_MAX_INTERVAL",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "witsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
org_url: "https://dev.azure.com/acme"
project: "Demo"
save_mode: "Batch"
log_level: "debug"
retry:
  attempts: 5
`)
	t.Setenv("WITSYNC_PAT", "secret")
	t.Setenv("WITSYNC_SAVE_MODE", "Item")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Mode() != engine.SaveModeItem {
		t.Errorf("expected save mode Item (from env), got %s", cfg.Mode())
	}
	if cfg.Project != "Demo" {
		t.Errorf("expected Project=Demo (from yaml), got %s", cfg.Project)
	}
	if cfg.PAT != "secret" {
		t.Errorf("expected PAT from env")
	}
	if cfg.Level() != zapcore.DebugLevel {
		t.Errorf("expected debug level, got %s", cfg.Level())
	}
	if cfg.Retry.Attempts != 5 {
		t.Errorf("expected Retry.Attempts=5, got %d", cfg.Retry.Attempts)
	}
	if cfg.UsesSandbox() {
		t.Error("expected remote configuration")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WITSYNC_SANDBOX_DB", "sandbox.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Mode() != engine.SaveModeTwoPhases {
		t.Errorf("expected default save mode TwoPhases, got %s", cfg.Mode())
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected Timeout=30s, got %s", cfg.Timeout)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.InitialInterval != 500*time.Millisecond {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Level() != zapcore.InfoLevel {
		t.Errorf("expected info level, got %s", cfg.Level())
	}
	if !cfg.UsesSandbox() {
		t.Error("expected sandbox configuration")
	}
}

func TestLoad_PATNotReadFromYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
org_url: "https://dev.azure.com/acme"
project: "Demo"
pat: "from-file"
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "WITSYNC_PAT") {
		t.Errorf("expected missing PAT error, got %v", err)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected error when config file is missing")
	}
}

func TestLoad_OverridesRunBeforeValidation(t *testing.T) {
	clearEnv(t)

	if _, err := Load(""); err == nil {
		t.Fatal("expected error without org_url or sandbox_db")
	}

	cfg, err := Load("", func(c *Config) { c.SandboxDB = "sandbox.db" })
	if err != nil {
		t.Fatalf("Load() with override: %v", err)
	}
	if !cfg.UsesSandbox() || cfg.SandboxDB != "sandbox.db" {
		t.Errorf("SandboxDB = %q, want sandbox.db", cfg.SandboxDB)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			OrgURL:   "https://dev.azure.com/acme",
			Project:  "Demo",
			PAT:      "secret",
			SaveMode: "TwoPhases",
			LogLevel: "info",
			Retry:    RetryConfig{Attempts: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid remote", func(c *Config) {}, ""},
		{"valid sandbox", func(c *Config) { c.OrgURL, c.PAT, c.SandboxDB = "", "", "x.db" }, ""},
		{"bad save mode", func(c *Config) { c.SaveMode = "parallel" }, "unsupported save mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }, "retry.attempts"},
		{"no target", func(c *Config) { c.OrgURL = "" }, "either org_url or sandbox_db"},
		{"relative url", func(c *Config) { c.OrgURL = "acme" }, "not an absolute URL"},
		{"no project", func(c *Config) { c.Project = "" }, "project is required"},
		{"no pat", func(c *Config) { c.PAT = "" }, "WITSYNC_PAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
