// Package testutil holds fixtures shared by the tests of packages that sit
// above the engine.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/engine"
	"github.com/ordokr/LMS/internal/ir"
)

// BatchPrefix prefixes the batch IDs of runtimes built by NewRuntime.
const BatchPrefix = "b"

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewRuntime returns an initialized Runtime with sequential batch IDs
// (b-1, b-2, ...) and a quiet logger, torn down when the test ends.
// It is backed by a SQLite file in t.TempDir() when durable is set.
func NewRuntime(t testing.TB, durable bool, opts ...bridge.Option) *bridge.Runtime {
	t.Helper()
	base := []bridge.Option{
		bridge.WithLogger(QuietLogger()),
		bridge.WithEngineOptions(engine.WithIDGenerator(engine.NewSequentialGenerator(BatchPrefix))),
	}
	if durable {
		base = append(base, bridge.WithDBPath(filepath.Join(t.TempDir(), "lmssync.db")))
	}
	rt := bridge.NewRuntime(append(base, opts...)...)
	require.NoError(t, rt.Init(context.Background()))
	t.Cleanup(func() {
		if rt.Initialized() {
			_ = rt.Teardown()
		}
	})
	return rt
}

// Apply submits ops as one batch, copies its rows out and frees the handle.
func Apply(t testing.TB, rt *bridge.Runtime, ops ...ir.Operation) ([]ir.ResultRow, ir.Block) {
	t.Helper()
	h, err := rt.ProcessOps(context.Background(), ops)
	require.NoError(t, err)

	n, err := rt.ResultCount(h)
	require.NoError(t, err)
	rows := make([]ir.ResultRow, n)
	_, err = rt.CopyResults(h, rows)
	require.NoError(t, err)
	block, err := rt.ResultBlock(h)
	require.NoError(t, err)
	require.NoError(t, rt.FreeResult(h))
	return rows, block
}
