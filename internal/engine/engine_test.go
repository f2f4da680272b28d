package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithIDGenerator(NewSequentialGenerator("batch")),
	}, opts...)
	return New(opts...)
}

func openTestStore(t *testing.T, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func process(t *testing.T, e *Engine, ops ...ir.Operation) []ir.ResultRow {
	t.Helper()
	a, err := e.Process(context.Background(), ops)
	require.NoError(t, err)
	rows, err := a.Rows()
	require.NoError(t, err)
	require.NoError(t, a.Release())
	return rows
}

func TestProcess_PutCASCASScenario(t *testing.T) {
	e := newTestEngine(t)

	rows := process(t, e,
		ir.Put("k1", "a"),
		ir.CAS("k1", "a", "b"),
		ir.CAS("k1", "a", "c"),
	)

	require.Len(t, rows, 3)
	assert.Equal(t, ir.ResultRow{Key: []byte("k1"), Outcome: ir.OutcomeApplied, NewVersion: 1}, rows[0])
	assert.Equal(t, ir.ResultRow{Key: []byte("k1"), Outcome: ir.OutcomeApplied, NewVersion: 2}, rows[1])
	assert.Equal(t, ir.ResultRow{Key: []byte("k1"), Outcome: ir.OutcomeConflict}, rows[2])

	entry, ok := e.Get([]byte("k1"))
	require.True(t, ok)
	assert.Equal(t, ir.Entry{Value: []byte("b"), Version: 2}, entry)
}

func TestProcess_DeleteOnEmptyState(t *testing.T) {
	e := newTestEngine(t)

	rows := process(t, e, ir.Delete("k2"))

	require.Len(t, rows, 1)
	assert.Equal(t, ir.OutcomeNotFound, rows[0].Outcome)
	assert.Zero(t, rows[0].NewVersion)
	assert.Equal(t, 0, e.Len())
	assert.Empty(t, e.Snapshot(""))
}

func TestProcess_EmptyBatch(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Process(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, ir.IsEmptyBatch(err))
	assert.Zero(t, e.Seq(), "rejected batch must not consume a seq")
}

func TestProcess_BatchTooLarge(t *testing.T) {
	e := newTestEngine(t, WithMaxBatchSize(2))

	_, err := e.Process(context.Background(), []ir.Operation{
		ir.Put("a", "1"), ir.Put("b", "2"), ir.Put("c", "3"),
	})
	assert.True(t, ir.HasCode(err, ir.ErrCodeBatchTooLarge))
	assert.Equal(t, 0, e.Len())
}

func TestProcess_InvalidOperationRejectsWholeBatch(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Process(context.Background(), []ir.Operation{
		ir.Put("a", "1"),
		{Key: []byte("b"), Kind: ir.OpCompareAndSwap}, // no expected value
	})
	require.Error(t, err)
	assert.True(t, ir.HasCode(err, ir.ErrCodeInvalidOperation))

	var ee *ir.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "1", ee.Details["index"])

	_, ok := e.Get([]byte("a"))
	assert.False(t, ok, "no operation of a rejected batch may apply")
}

func TestProcess_ConflictDoesNotRollBackOthers(t *testing.T) {
	e := newTestEngine(t)

	rows := process(t, e,
		ir.Put("x", "1"),
		ir.CAS("y", "nope", "2"),
		ir.Put("z", "3"),
	)

	assert.Equal(t, ir.OutcomeApplied, rows[0].Outcome)
	assert.Equal(t, ir.OutcomeConflict, rows[1].Outcome)
	assert.Equal(t, ir.OutcomeApplied, rows[2].Outcome)
	assert.Equal(t, 2, e.Len())
}

func TestProcess_CASOnMissingKeyConflicts(t *testing.T) {
	e := newTestEngine(t)

	rows := process(t, e, ir.CAS("missing", "", "v"))
	assert.Equal(t, ir.OutcomeConflict, rows[0].Outcome)

	_, ok := e.Get([]byte("missing"))
	assert.False(t, ok)
}

func TestProcess_OrderPreservation(t *testing.T) {
	e := newTestEngine(t)

	ops := make([]ir.Operation, 0, 50)
	for i := 0; i < 50; i++ {
		ops = append(ops, ir.Put(fmt.Sprintf("key-%02d", i), "v"))
	}
	rows := process(t, e, ops...)

	require.Len(t, rows, len(ops))
	for i := range ops {
		assert.Equal(t, ops[i].Key, rows[i].Key, "row %d", i)
	}
}

func TestProcess_VersionMonotonicity(t *testing.T) {
	e := newTestEngine(t)

	var last uint64
	for i := 0; i < 10; i++ {
		rows := process(t, e, ir.Put("k", fmt.Sprintf("v%d", i)))
		assert.Greater(t, rows[0].NewVersion, last)
		last = rows[0].NewVersion
	}
	assert.Equal(t, uint64(10), last)
}

func TestProcess_DeleteLeavesTombstone(t *testing.T) {
	e := newTestEngine(t)

	rows := process(t, e,
		ir.Put("k", "a"),
		ir.Delete("k"),
		ir.Delete("k"),
		ir.Put("k", "b"),
	)

	assert.Equal(t, uint64(1), rows[0].NewVersion)
	assert.Equal(t, ir.ResultRow{Key: []byte("k"), Outcome: ir.OutcomeApplied, NewVersion: 2}, rows[1])
	assert.Equal(t, ir.OutcomeNotFound, rows[2].Outcome)
	assert.Equal(t, uint64(3), rows[3].NewVersion, "re-created key continues after the tombstone")
}

func TestProcess_LaterOpsSeeEarlierOps(t *testing.T) {
	e := newTestEngine(t)
	process(t, e, ir.Put("k", "a"))

	rows := process(t, e,
		ir.CAS("k", "a", "b"),
		ir.CAS("k", "b", "c"),
		ir.Delete("k"),
		ir.CAS("k", "c", "d"),
	)
	assert.Equal(t, []ir.Outcome{
		ir.OutcomeApplied, ir.OutcomeApplied, ir.OutcomeApplied, ir.OutcomeConflict,
	}, outcomes(rows))
}

func TestProcess_DoesNotRetainCallerBytes(t *testing.T) {
	e := newTestEngine(t)

	op := ir.Put("k", "a")
	process(t, e, op)
	op.Value[0] = 'z'
	op.Key[0] = 'q'

	entry, ok := e.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("a"), entry.Value)
}

func TestProcess_SealsChain(t *testing.T) {
	e := newTestEngine(t)

	a1, err := e.Process(context.Background(), []ir.Operation{ir.Put("a", "1")})
	require.NoError(t, err)
	a2, err := e.Process(context.Background(), []ir.Operation{ir.Put("b", "2")})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a1.Seq())
	assert.Equal(t, uint64(2), a2.Seq())
	assert.Equal(t, "batch-1", a1.BatchID())
	assert.Equal(t, a1.Block().Hash, a2.Block().PrevHash)
	assert.Equal(t, a2.Block(), e.Head())

	v := e.Verifier()
	assert.True(t, v.VerifyLink(ir.ZeroHash, a1.Block().Hash))
	assert.True(t, v.VerifyChain([]ir.Hash{a1.Block().Hash, a2.Block().Hash}))
	assert.False(t, v.VerifyChain([]ir.Hash{a2.Block().Hash, a1.Block().Hash}))

	blocks, err := e.Blocks(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "batch-2", blocks[1].ID)
}

func TestProcess_CancelledContext(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Process(ctx, []ir.Operation{ir.Put("k", "v")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.Len())
}

func TestProcess_Closed(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Process(context.Background(), []ir.Operation{ir.Put("k", "v")})
	assert.True(t, ir.HasCode(err, ir.ErrCodeClosed))
}

func TestProcess_ConcurrentBatchesAreSerialized(t *testing.T) {
	e := newTestEngine(t)
	process(t, e, ir.Put("counter", "0"))

	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := e.Process(context.Background(), []ir.Operation{ir.Put("counter", "x"), ir.Put("other", "y")})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	entry, ok := e.Get([]byte("counter"))
	require.True(t, ok)
	assert.Equal(t, uint64(1+workers*perWorker), entry.Version)
	assert.Equal(t, uint64(1+workers*perWorker), e.Seq())
}

func TestSnapshotPrefix(t *testing.T) {
	e := newTestEngine(t)
	process(t, e, ir.Put("user/1", "a"), ir.Put("user/2", "b"), ir.Put("item/1", "c"), ir.Delete("user/2"))

	snap := e.Snapshot("user/")
	assert.Equal(t, map[string]ir.Entry{"user/1": {Value: []byte("a"), Version: 1}}, snap)
	assert.Equal(t, 2, e.Len())
}

func TestOpen_RecoversState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s1 := openTestStore(t, path)
	e1, err := Open(ctx, s1, WithLogger(quietLogger()), WithIDGenerator(NewSequentialGenerator("b")))
	require.NoError(t, err)
	process(t, e1, ir.Put("k1", "a"), ir.Put("k2", "x"))
	process(t, e1, ir.CAS("k1", "a", "b"), ir.Delete("k2"))
	head := e1.Head()
	require.NoError(t, s1.Close())

	s2 := openTestStore(t, path)
	e2, err := Open(ctx, s2, WithLogger(quietLogger()), WithIDGenerator(NewSequentialGenerator("c")))
	require.NoError(t, err)

	assert.Equal(t, head, e2.Head())
	assert.Equal(t, uint64(2), e2.Seq())
	assert.Equal(t, 1, e2.Len())

	entry, ok := e2.Get([]byte("k1"))
	require.True(t, ok)
	assert.Equal(t, ir.Entry{Value: []byte("b"), Version: 2}, entry)

	// The tombstone survives recovery.
	rows := process(t, e2, ir.Put("k2", "again"))
	assert.Equal(t, uint64(3), rows[0].NewVersion)

	blocks, err := e2.Blocks(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	hashes := []ir.Hash{blocks[0].Block.Hash, blocks[1].Block.Hash, blocks[2].Block.Hash}
	assert.True(t, e2.Verifier().VerifyChain(hashes))
}

// failingStore rejects every commit.
type failingStore struct {
	*store.Store
}

func (failingStore) CommitBatch(context.Context, store.BatchRecord) error {
	return errors.New("disk full")
}

func TestProcess_PersistFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))

	e, err := Open(ctx, failingStore{s}, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = e.Process(ctx, []ir.Operation{ir.Put("k", "v")})
	require.Error(t, err)
	assert.True(t, ir.HasCode(err, ir.ErrCodePersistFailed))
	assert.ErrorContains(t, err, "disk full")

	_, ok := e.Get([]byte("k"))
	assert.False(t, ok)
	assert.Zero(t, e.Seq())
	assert.True(t, e.Head().Hash.IsZero())
}

func outcomes(rows []ir.ResultRow) []ir.Outcome {
	out := make([]ir.Outcome, len(rows))
	for i, r := range rows {
		out[i] = r.Outcome
	}
	return out
}
