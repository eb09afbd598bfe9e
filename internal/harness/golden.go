package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/witsync/internal/testutil"
	"github.com/roach88/witsync/internal/wit"
)

// GoldenDir is where RunWithGolden keeps traces, relative to the test.
const GoldenDir = "testdata/golden"

// ErrTraceMismatch is returned by CompareGolden when traces differ.
var ErrTraceMismatch = errors.New("trace does not match golden file")

// FormatTrace renders calls as canonical JSON, one call per line.
func FormatTrace(calls []testutil.Call) ([]byte, error) {
	var buf bytes.Buffer
	for _, call := range calls {
		line, err := wit.MarshalCanonical(callMap(call))
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", call.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// callMap converts a call to the value types MarshalCanonical accepts,
// leaving out empty attributes.
func callMap(c testutil.Call) map[string]any {
	m := map[string]any{
		"seq":    c.Seq,
		"method": c.Method,
	}
	if c.ID != 0 {
		m["id"] = c.ID
	}
	if len(c.IDs) > 0 {
		m["ids"] = c.IDs
	}
	if c.Project != "" {
		m["project"] = c.Project
	}
	if c.Type != "" {
		m["type"] = c.Type
	}
	if len(c.Doc) > 0 {
		m["doc"] = c.Doc
	}
	if len(c.Batch) > 0 {
		entries := make([]any, len(c.Batch))
		for i, r := range c.Batch {
			entry := map[string]any{
				"method": r.Method,
				"uri":    r.URI,
				"body":   r.Body,
			}
			if len(r.Headers) > 0 {
				entry["headers"] = r.Headers
			}
			entries[i] = entry
		}
		m["batch"] = entries
	}
	if c.Err != "" {
		m["error"] = c.Err
	}
	return m
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), s, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, s.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace with the golden file
// for name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	trace, err := FormatTrace(result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, trace)
	return nil
}

// CompareGolden checks a trace against <dir>/<name>.golden outside of
// tests. A missing golden file is not an error; ok reports whether one
// was compared.
func CompareGolden(dir, name string, calls []testutil.Call) (ok bool, err error) {
	want, err := os.ReadFile(filepath.Join(dir, name+".golden"))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	got, err := FormatTrace(calls)
	if err != nil {
		return false, err
	}
	if !bytes.Equal(got, want) {
		return true, fmt.Errorf("%s: %w", name, ErrTraceMismatch)
	}
	return true, nil
}
