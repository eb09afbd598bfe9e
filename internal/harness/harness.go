package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/witsync/internal/changeset"
	"github.com/roach88/witsync/internal/engine"
	"github.com/roach88/witsync/internal/store"
	"github.com/roach88/witsync/internal/testutil"
	"github.com/roach88/witsync/internal/wit"
)

// DefaultProject is the tracker project for items that name none.
const DefaultProject = "Default"

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when the expectation and every assertion hold.
	Pass bool

	Created int
	Updated int

	// Err is the error returned by Apply or Commit, if any.
	Err error

	// Phase is the last commit phase reached.
	Phase engine.Phase

	// Trace lists every remote call in order.
	Trace []testutil.Call

	// Errors describes each failed check.
	Errors []string
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *zap.Logger
}

// WithLogger sends session logs to logger instead of discarding them.
func WithLogger(logger *zap.Logger) Option {
	return func(c *runConfig) { c.logger = logger }
}

// Run executes a scenario in a fresh sandbox.
//
// Execution flow:
//  1. Open a sandbox in a temporary directory and seed it
//  2. Apply the change set to a session recording every call
//  3. Commit in the scenario mode
//  4. Check the expectation and assertions
//
// The returned error covers harness failures only; commit failures are
// reported in Result.Err and judged against the expectation.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	mode, err := s.SaveMode()
	if err != nil {
		return nil, err
	}
	cs, err := s.ParseChangeSet()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "witsync-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox dir: %w", err)
	}
	defer os.RemoveAll(dir)

	sandbox, err := store.Open(filepath.Join(dir, "sandbox.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sandbox: %w", err)
	}
	defer sandbox.Close()

	if _, err := sandbox.Seed(ctx, s.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed sandbox: %w", err)
	}

	client := testutil.NewRecordingClient(sandbox)
	st := engine.New(client, testutil.NewTracker(sandbox.BaseURL(), DefaultProject),
		cfg.logger.With(zap.String("scenario", s.Name)))

	result := &Result{Pass: true}
	if _, err := changeset.Apply(ctx, st, cs); err != nil {
		result.Err = err
	} else {
		result.Created, result.Updated, result.Err = st.Commit(ctx, mode, !s.DryRun)
	}
	result.Phase = st.Phase()
	result.Trace = client.Calls()

	checkExpectation(result, s.Expect)
	for i, a := range s.Assertions {
		if err := evaluate(ctx, sandbox, result.Trace, a); err != nil {
			result.addError("assertions[%d] %s: %v", i, a.Type, err)
		}
	}
	return result, nil
}

func checkExpectation(r *Result, want Expectation) {
	if want.Error == "" {
		if r.Err != nil {
			r.addError("unexpected error: %v", r.Err)
			return
		}
	} else {
		if r.Err == nil {
			r.addError("expected error %q, got success", want.Error)
			return
		}
		if !matchError(r.Err, want.Error) {
			r.addError("expected error %q, got %v", want.Error, r.Err)
		}
		return
	}

	if r.Created != want.Created {
		r.addError("created: expected %d, got %d", want.Created, r.Created)
	}
	if r.Updated != want.Updated {
		r.addError("updated: expected %d, got %d", want.Updated, r.Updated)
	}
}

// matchError accepts a commit error code or a message substring.
func matchError(err error, want string) bool {
	var ce *engine.CommitError
	if errors.As(err, &ce) && string(ce.Code) == want {
		return true
	}
	return strings.Contains(err.Error(), want)
}

func evaluate(ctx context.Context, sandbox *store.Store, trace []testutil.Call, a Assertion) error {
	switch a.Type {
	case AssertCallCount:
		return assertCallCount(trace, a)
	case AssertCallOrder:
		return assertCallOrder(trace, a)
	case AssertFinalState:
		return assertFinalState(ctx, sandbox, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCallCount(trace []testutil.Call, a Assertion) error {
	n := 0
	for _, call := range trace {
		if call.Method == a.Method {
			n++
		}
	}
	if n != a.Count {
		return fmt.Errorf("expected %d calls to %s, got %d", a.Count, a.Method, n)
	}
	return nil
}

// assertCallOrder checks that the methods occur in order, each after the
// previous match. Other calls may come in between.
func assertCallOrder(trace []testutil.Call, a Assertion) error {
	pos := 0
	for _, method := range a.Methods {
		found := false
		for pos < len(trace) {
			pos++
			if trace[pos-1].Method == method {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("expected calls in order %v, %s missing or out of order in %v",
				a.Methods, method, methods(trace))
		}
	}
	return nil
}

func methods(trace []testutil.Call) []string {
	out := make([]string, len(trace))
	for i, call := range trace {
		out[i] = call.Method
	}
	return out
}

func assertFinalState(ctx context.Context, sandbox *store.Store, a Assertion) error {
	wi, err := sandbox.GetWorkItem(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("work item %d: %w", a.ID, err)
	}

	var problems []string
	for name, want := range a.Fields {
		got, ok := wi.Fields[name]
		switch {
		case want == nil && ok:
			problems = append(problems, fmt.Sprintf("%s: expected unset, got %v", name, got))
		case want != nil && !ok:
			problems = append(problems, fmt.Sprintf("%s: expected %v, got unset", name, want))
		case want != nil && !wit.ValuesEqual(got, want):
			problems = append(problems, fmt.Sprintf("%s: expected %v, got %v", name, want, got))
		}
	}
	if a.Deleted != nil && wi.IsDeleted != *a.Deleted {
		problems = append(problems, fmt.Sprintf("deleted: expected %t, got %t", *a.Deleted, wi.IsDeleted))
	}
	if a.Relations != nil && len(wi.Relations) != *a.Relations {
		problems = append(problems, fmt.Sprintf("relations: expected %d, got %d", *a.Relations, len(wi.Relations)))
	}
	if len(problems) > 0 {
		return fmt.Errorf("work item %d: %s", a.ID, strings.Join(problems, "; "))
	}
	return nil
}
