package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/witsync/internal/store"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
}

// SeedResult lists the ids of the seeded work items in file order.
type SeedResult struct {
	IDs []int `json:"ids"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Create fixture work items in a sandbox",
		Long: `Create the work items listed in a YAML file in a SQLite sandbox.

The file is a list of items:

  - type: Task
    project: Demo
    fields:
      System.Title: Write docs
  - type: Bug
    project: Demo
    deleted: true

Example:
  witsync seed fixtures.yaml --db ./sandbox.db`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to a SQLite sandbox; overrides config")

	return cmd
}

func runSeed(ctx context.Context, opts *SeedOptions, path string, cmd *cobra.Command) error {
	items, err := readSeedFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixtures", err)
	}

	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	if !cfg.UsesSandbox() {
		return NewExitError(ExitCommandError, "seed only writes to a sandbox; pass --db or set sandbox_db")
	}

	sandbox, err := store.Open(cfg.SandboxDB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open sandbox", err)
	}
	defer sandbox.Close()

	ids, err := sandbox.Seed(ctx, items)
	if err != nil {
		return WrapExitError(ExitFailure, "seed failed", err)
	}

	text := make([]string, len(ids))
	for i, id := range ids {
		text[i] = fmt.Sprint(id)
	}
	return opts.formatter(cmd).Success(SeedResult{IDs: ids},
		fmt.Sprintf("Seeded %d work items: %s", len(ids), strings.Join(text, ", ")))
}

func readSeedFile(path string) ([]store.SeedItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []store.SeedItem
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, item := range items {
		if item.Type == "" {
			return nil, fmt.Errorf("item %d: type is required", i)
		}
	}
	return items, nil
}
