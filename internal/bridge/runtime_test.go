package bridge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/ir"
)

func TestRuntime_InitTwice(t *testing.T) {
	rt := newTestRuntime(t)

	err := rt.Init(context.Background())
	assert.True(t, ir.HasCode(err, ir.ErrCodeAlreadyInitialized), "got %v", err)
	assert.True(t, rt.Initialized())
}

func TestRuntime_CallsBeforeInit(t *testing.T) {
	rt := NewRuntime(WithLogger(quietLogger()))

	_, err := rt.ProcessOps(context.Background(), []ir.Operation{ir.Put("a", "1")})
	assert.True(t, ir.HasCode(err, ir.ErrCodeNotInitialized), "got %v", err)

	_, err = rt.ResultCount(1)
	assert.True(t, ir.HasCode(err, ir.ErrCodeNotInitialized))

	assert.True(t, ir.HasCode(rt.FreeResult(1), ir.ErrCodeNotInitialized))
	assert.True(t, ir.HasCode(rt.FreeString(1), ir.ErrCodeNotInitialized))
	assert.True(t, ir.HasCode(rt.Teardown(), ir.ErrCodeNotInitialized))
	assert.False(t, rt.VerifyLink(ir.ZeroHash, ir.ZeroHash))
	assert.Equal(t, StringHandle(0), rt.ParseQuery("from state"))
	assert.Nil(t, rt.Engine())
}

func TestRuntime_CallsAfterTeardown(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Teardown())

	_, err := rt.ProcessBatch(context.Background(), mustEncode(t, ir.Put("a", "1")), 1)
	assert.True(t, ir.HasCode(err, ir.ErrCodeNotInitialized), "got %v", err)
	assert.True(t, ir.HasCode(rt.Teardown(), ir.ErrCodeNotInitialized))
}

func TestRuntime_TeardownReleasesLiveHandles(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := rt.ProcessOps(context.Background(), []ir.Operation{ir.Put("a", "1")})
	require.NoError(t, err)
	require.NotZero(t, rt.ParseQuery("from state"))
	assert.Equal(t, 1, rt.LiveResults())
	assert.Equal(t, 1, rt.LiveStrings())

	require.NoError(t, rt.Teardown())
	assert.Equal(t, 0, rt.LiveResults())
	assert.Equal(t, 0, rt.LiveStrings())
}

func TestRuntime_ReinitRecoversFromStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reinit.db")
	rt := NewRuntime(WithLogger(quietLogger()), WithDBPath(path))
	ctx := context.Background()

	require.NoError(t, rt.Init(ctx))
	_, first := process(t, rt, ir.Put("a", "1"), ir.Put("b", "2"))
	require.NoError(t, rt.Teardown())

	require.NoError(t, rt.Init(ctx))
	defer rt.Teardown()

	entry, ok := rt.Engine().Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, ir.Entry{Value: []byte("1"), Version: 1}, entry)

	_, second := process(t, rt, ir.Put("a", "3"))
	assert.Equal(t, uint64(2), second.Index)
	assert.Equal(t, first.Hash, second.PrevHash)
	assert.True(t, rt.VerifyLink(first.Hash, second.Hash))
}
