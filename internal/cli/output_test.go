package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rendered struct{ N int }

func (r rendered) RenderText(w io.Writer) { fmt.Fprintf(w, "n=%d\n", r.N) }

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONFailureKeepsData(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Failure("CHAIN_BROKEN", "chain broken at index 2", rendered{N: 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "CHAIN_BROKEN", resp.Error.Code)
	assert.Equal(t, map[string]any{"N": float64(3)}, resp.Data)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success(rendered{N: 1}))
	require.NoError(t, f.Success("plain"))
	require.NoError(t, f.Failure("X", "went wrong", rendered{N: 2}))
	assert.Equal(t, "n=1\nplain\nn=2\nError [X]: went wrong\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, f.Error("COMPILE_ERROR", "bad", []string{"a.cue:1:1"}))
	assert.Contains(t, buf.String(), "Error [COMPILE_ERROR]: bad")
	assert.Contains(t, buf.String(), "Details: [a.cue:1:1]")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	for _, verbose := range []bool{true, false} {
		out, diag := &bytes.Buffer{}, &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: verbose}
		f.VerboseLog("processing %s", "x")
		assert.Empty(t, out.String())
		if verbose {
			assert.Equal(t, "processing x\n", diag.String())
		} else {
			assert.Empty(t, diag.String())
		}
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad path"))))

	err := WrapExitError(ExitFailure, "apply", errors.New("boom"))
	assert.Equal(t, "apply: boom", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "boom")
}
