package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/witsync/internal/changeset"
	"github.com/roach88/witsync/internal/engine"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Mode     string
	DryRun   bool
	Database string
}

// ApplyResult is the outcome of the apply command.
type ApplyResult struct {
	Mode     string         `json:"mode"`
	DryRun   bool           `json:"dry_run"`
	Created  int            `json:"created"`
	Updated  int            `json:"updated"`
	Attempts int            `json:"attempts"`
	Refs     map[string]int `json:"refs,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <changeset.yaml>",
		Short: "Apply a change set and commit it",
		Long: `Load the work items named by a change set, apply its edits and commit
them in one session.

Save modes:
  twophases  create items first, then send updates and relations (default)
  batch      send everything in one batch; links between new items fail
  item       one call per work item; failures are reported together

Exit codes:
  0 - Commit succeeded (or dry run finished)
  1 - Commit failed
  2 - Command error (bad change set, configuration, flags)

Examples:
  witsync apply changes.yaml --db ./sandbox.db
  witsync apply changes.yaml --mode batch --dry-run
  witsync apply changes.yaml --config witsync.yaml --format json`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "save mode (twophases|batch|item); overrides config")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log the intended changes without sending them")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to a SQLite sandbox; overrides config")

	return cmd
}

func runApply(ctx context.Context, opts *ApplyOptions, path string, cmd *cobra.Command) error {
	cs, err := changeset.ParseFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load change set", err)
	}

	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	mode := cfg.Mode()
	if opts.Mode != "" {
		if mode, err = engine.ParseSaveMode(opts.Mode); err != nil {
			return WrapExitError(ExitCommandError, "invalid --mode", err)
		}
	}

	logger := commandLogger(cmd, opts.RootOptions, cfg)
	defer logger.Sync() //nolint:errcheck

	client, closeClient, err := openClient(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeClient(); closeErr != nil {
			logger.Error("Failed to close client", zap.Error(closeErr))
		}
	}()

	result := ApplyResult{Mode: mode.String(), DryRun: opts.DryRun}
	attempt := func(ctx context.Context) (engine.Phase, error) {
		st := newSession(client, cfg, logger)
		refs, err := changeset.Apply(ctx, st, cs)
		if err != nil {
			return st.Phase(), err
		}
		created, updated, err := st.Commit(ctx, mode, !opts.DryRun)
		if err != nil {
			return st.Phase(), err
		}
		result.Created, result.Updated = created, updated
		result.Refs = make(map[string]int, len(refs))
		for ref, w := range refs {
			result.Refs[ref] = w.ID()
		}
		return st.Phase(), nil
	}

	result.Attempts, err = withRetry(ctx, cfg.Retry, logger, attempt)
	if err != nil {
		if engine.IsValidationError(err) || errors.Is(err, changeset.ErrInvalid) {
			return WrapExitError(ExitCommandError, "commit rejected", err)
		}
		return WrapExitError(ExitFailure, "commit failed", err)
	}

	return opts.formatter(cmd).Success(result, formatApply(result))
}

func formatApply(r ApplyResult) string {
	var b strings.Builder
	if r.DryRun {
		fmt.Fprintf(&b, "Dry run (%s): would create %d and update %d work items", r.Mode, r.Created, r.Updated)
	} else {
		fmt.Fprintf(&b, "Committed (%s): created %d, updated %d work items", r.Mode, r.Created, r.Updated)
	}
	for _, ref := range slices.Sorted(maps.Keys(r.Refs)) {
		fmt.Fprintf(&b, "\n  %s -> %d", ref, r.Refs[ref])
	}
	return b.String()
}
