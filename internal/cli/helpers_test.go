package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/witsync/internal/store"
)

// clearEnv unsets every variable config.Load reads.
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

type cliRun struct {
	code   int
	stdout string
	stderr string
}

func execute(t *testing.T, args ...string) cliRun {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return cliRun{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// decode parses a JSON envelope and returns its data re-decoded into out.
func decode(t *testing.T, raw string, out any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp), "output: %s", raw)
	if out != nil && resp.Data != nil {
		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out))
	}
	return resp
}

// seedSandbox creates a sandbox file with items and closes it again.
func seedSandbox(t *testing.T, items ...store.SeedItem) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sandbox.db")
	sandbox, err := store.Open(path)
	require.NoError(t, err)
	defer sandbox.Close()
	_, err = sandbox.Seed(context.Background(), items)
	require.NoError(t, err)
	return path
}

func task(title string) store.SeedItem {
	return store.SeedItem{Type: "Task", Project: "Demo", Fields: map[string]any{"System.Title": title}}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func openSandbox(t *testing.T, path string) *store.Store {
	t.Helper()
	sandbox, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { sandbox.Close() })
	return sandbox
}
