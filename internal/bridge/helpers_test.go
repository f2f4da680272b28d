package bridge

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/arena"
	"github.com/ordokr/LMS/internal/engine"
	"github.com/ordokr/LMS/internal/ir"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRuntime returns an initialized in-memory runtime torn down at the
// end of the test.
func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithEngineOptions(engine.WithIDGenerator(engine.NewSequentialGenerator("batch"))),
	}, opts...)
	rt := NewRuntime(opts...)
	require.NoError(t, rt.Init(context.Background()))
	t.Cleanup(func() {
		if rt.Initialized() {
			_ = rt.Teardown()
		}
	})
	return rt
}

func newDurableRuntime(t *testing.T) *Runtime {
	t.Helper()
	return newTestRuntime(t, WithDBPath(filepath.Join(t.TempDir(), "bridge.db")))
}

func mustEncode(t *testing.T, ops ...ir.Operation) []byte {
	t.Helper()
	buf, err := EncodeOperations(ops)
	require.NoError(t, err)
	return buf
}

// process submits ops through the CBOR path and returns the copied rows
// and block, freeing the handle.
func process(t *testing.T, rt *Runtime, ops ...ir.Operation) ([]ir.ResultRow, ir.Block) {
	t.Helper()
	h, err := rt.ProcessBatch(context.Background(), mustEncode(t, ops...), len(ops))
	require.NoError(t, err)
	return drain(t, rt, h)
}

func drain(t *testing.T, rt *Runtime, h arena.Handle) ([]ir.ResultRow, ir.Block) {
	t.Helper()
	n, err := rt.ResultCount(h)
	require.NoError(t, err)
	rows := make([]ir.ResultRow, n)
	copied, err := rt.CopyResults(h, rows)
	require.NoError(t, err)
	require.Equal(t, int(n), copied)
	block, err := rt.ResultBlock(h)
	require.NoError(t, err)
	require.NoError(t, rt.FreeResult(h))
	return rows, block
}
