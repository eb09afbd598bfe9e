package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/witsync/internal/tracker"
	"github.com/roach88/witsync/internal/wit"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	Related  bool
}

// WorkItemView is the printable form of a work item.
type WorkItemView struct {
	ID        int            `json:"id"`
	Rev       int            `json:"rev"`
	Type      string         `json:"type"`
	Project   string         `json:"project"`
	Deleted   bool           `json:"deleted"`
	Fields    map[string]any `json:"fields"`
	Relations []RelationView `json:"relations,omitempty"`
}

// RelationView is one relation, with the target title when it was loaded.
type RelationView struct {
	Rel         string `json:"rel"`
	URL         string `json:"url"`
	TargetID    int    `json:"target_id,omitempty"`
	TargetTitle string `json:"target_title,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a work item",
		Long: `Print the fields and relations of one work item.

Examples:
  witsync show 42 --db ./sandbox.db
  witsync show 42 --related --format json`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid work item id %q", args[0]))
			}
			return runShow(cmd.Context(), opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to a SQLite sandbox; overrides config")
	cmd.Flags().BoolVar(&opts.Related, "related", false, "load related work items and print their titles")

	return cmd
}

func runShow(ctx context.Context, opts *ShowOptions, id int, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
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

	st := newSession(client, cfg, logger)
	w, err := st.GetWorkItem(ctx, id)
	if err != nil {
		if errors.Is(err, wit.ErrNotFound) {
			return WrapExitError(ExitFailure, fmt.Sprintf("work item %d not found", id), err)
		}
		return WrapExitError(ExitFailure, "failed to load work item", err)
	}

	view := newWorkItemView(w)
	if opts.Related {
		for i, r := range w.Relations() {
			target, err := st.GetRelatedWorkItem(ctx, r)
			if err != nil {
				logger.Debug("Relation target not loaded", zap.String("url", r.URL), zap.Error(err))
				continue
			}
			if title, ok := target.Field(wit.FieldTitle); ok {
				view.Relations[i].TargetTitle = fmt.Sprint(title)
			}
		}
	}

	return opts.formatter(cmd).Success(view, formatWorkItem(view))
}

func newWorkItemView(w *tracker.Wrapper) WorkItemView {
	v := WorkItemView{
		ID:      w.ID(),
		Rev:     w.Rev(),
		Type:    w.WorkItemType(),
		Project: w.Project(),
		Deleted: w.IsDeleted(),
		Fields:  w.Fields(),
	}
	for _, r := range w.Relations() {
		rv := RelationView{Rel: r.Rel, URL: r.URL}
		if id, err := wit.ParseWorkItemURL(r.URL); err == nil {
			rv.TargetID = id
		}
		v.Relations = append(v.Relations, rv)
	}
	return v
}

func formatWorkItem(v WorkItemView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d rev %d %s in %s", v.ID, v.Rev, v.Type, v.Project)
	if v.Deleted {
		b.WriteString(" (deleted)")
	}
	for _, name := range slices.Sorted(maps.Keys(v.Fields)) {
		fmt.Fprintf(&b, "\n  %s: %v", name, v.Fields[name])
	}
	for _, r := range v.Relations {
		target := r.URL
		if r.TargetID != 0 {
			target = strconv.Itoa(r.TargetID)
		}
		fmt.Fprintf(&b, "\n  -> %s %s", r.Rel, target)
		if r.TargetTitle != "" {
			fmt.Fprintf(&b, " %q", r.TargetTitle)
		}
	}
	return b.String()
}
