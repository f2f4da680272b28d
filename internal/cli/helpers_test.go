package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// executeJSON runs the command with --format json and decodes the envelope.
func executeJSON(t *testing.T, args ...string) (CLIResponse, error) {
	t.Helper()
	stdout, _, err := execute(t, append(args, "--format", "json")...)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	return resp, err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// dataAs re-decodes the generic Data field into T.
func dataAs[T any](t *testing.T, resp CLIResponse) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

const twoBatches = `
batches:
  - ops:
      - {kind: put, key: user/1, value: ada}
      - {kind: put, key: user/2, value: bob}
  - ops:
      - {kind: cas, key: user/2, expected: bob, value: bea}
      - {kind: cas, key: user/1, expected: zed, value: x}
      - {kind: delete, key: user/9}
`
