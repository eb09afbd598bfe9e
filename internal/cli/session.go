package cli

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/witsync/internal/azdo"
	"github.com/roach88/witsync/internal/config"
	"github.com/roach88/witsync/internal/engine"
	"github.com/roach88/witsync/internal/store"
	"github.com/roach88/witsync/internal/tracker"
	"github.com/roach88/witsync/internal/wit"
)

// sandboxProject is the default project for sandbox sessions without one.
const sandboxProject = "Default"

// loadConfig reads configuration; a non-empty db selects that sandbox.
func loadConfig(opts *RootOptions, db string) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, func(c *config.Config) {
		if db != "" {
			c.SandboxDB = db
		}
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// newLogger writes human-readable logs to w. Verbose forces debug level.
func newLogger(w io.Writer, level zapcore.Level, verbose bool) *zap.Logger {
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

func commandLogger(cmd *cobra.Command, opts *RootOptions, cfg *config.Config) *zap.Logger {
	return newLogger(cmd.ErrOrStderr(), cfg.Level(), opts.Verbose)
}

// openClient connects to the sandbox or the organization named by cfg.
// The returned close function is never nil.
func openClient(cfg *config.Config, logger *zap.Logger) (wit.Client, func() error, error) {
	if cfg.UsesSandbox() {
		sandbox, err := store.Open(cfg.SandboxDB)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open sandbox", err)
		}
		logger.Debug("Using sandbox", zap.String("path", cfg.SandboxDB))
		return sandbox, sandbox.Close, nil
	}
	client := azdo.NewClient(cfg.OrgURL, cfg.Project, cfg.PAT, logger, azdo.WithTimeout(cfg.Timeout))
	return client, func() error { return nil }, nil
}

// newSession starts a tracking session with a fresh identity map.
func newSession(client wit.Client, cfg *config.Config, logger *zap.Logger) *engine.Store {
	project := cfg.Project
	if project == "" {
		project = sandboxProject
	}
	return engine.New(client, tracker.New(client.BaseURL(), project), logger)
}
