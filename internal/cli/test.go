package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/witsync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern on the scenario name)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden bool     `json:"golden"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run commit scenarios against throwaway sandboxes",
		Long: `Run every scenario file in a directory. Each scenario seeds a fresh
sandbox, applies its change set, commits and checks the outcome. When
<scenarios-dir>/golden/<name>.golden exists the call trace must match it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreadable scenarios)

Examples:
  witsync test ./scenarios
  witsync test ./scenarios --filter "batch_*"
  witsync test ./scenarios --update`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, dir string, cmd *cobra.Command) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	scenarios, err := harness.LoadScenarios(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}

	var runOpts []harness.Option
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(newLogger(cmd.ErrOrStderr(), zapcore.DebugLevel, true)))
	}

	goldenDir := filepath.Join(dir, "golden")
	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, s := range scenarios {
		if opts.Filter != "" {
			if ok, _ := filepath.Match(opts.Filter, s.Name); !ok {
				continue
			}
		}
		sr := runScenario(ctx, s, goldenDir, opts.Update, runOpts)
		result.Scenarios = append(result.Scenarios, sr)
		result.Total++
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd.OutOrStdout(), result)
}

func runScenario(ctx context.Context, s *harness.Scenario, goldenDir string, update bool, runOpts []harness.Option) ScenarioResult {
	sr := ScenarioResult{Name: s.Name}

	res, err := harness.Run(ctx, s, runOpts...)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Pass = res.Pass
	sr.Errors = res.Errors

	if update {
		if err := writeGolden(goldenDir, s.Name, res); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		sr.Golden = true
		return sr
	}

	compared, err := harness.CompareGolden(goldenDir, s.Name, res.Trace)
	sr.Golden = compared
	if err != nil {
		sr.Pass = false
		if errors.Is(err, harness.ErrTraceMismatch) {
			sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
		} else {
			sr.Errors = append(sr.Errors, fmt.Sprintf("golden comparison failed: %v", err))
		}
	}
	return sr
}

func writeGolden(dir, name string, res *harness.Result) error {
	data, err := harness.FormatTrace(res.Trace)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, name+".golden"), data, 0644)
}

func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	if result.Failed == 0 {
		return f.Success(result, "")
	}

	message := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := f.Error(CodeTestFailed, message, result); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: message, Reported: true}
}

func outputTestText(w io.Writer, result TestResult) error {
	for _, sr := range result.Scenarios {
		mark := "✓"
		if !sr.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d scenario(s) failed", result.Failed), Reported: true}
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
