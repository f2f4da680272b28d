package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/ir"
)

func TestCommitBatch_PersistsEverything(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := testRecord(ir.Block{}, "k1", "a", 1)
	require.NoError(t, s.CommitBatch(ctx, rec))

	state, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, state, 1)
	assert.Equal(t, []byte("k1"), state[0].Key)
	assert.Equal(t, []byte("a"), state[0].Value)
	assert.Equal(t, uint64(1), state[0].Version)
	assert.False(t, state[0].Deleted)

	head, ok, err := s.LastBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Block, head)

	results, err := s.ReadBatchResults(ctx, rec.Seq)
	require.NoError(t, err)
	assert.Equal(t, rec.Results, results)
}

func TestCommitBatch_UpsertsState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := testRecord(ir.Block{}, "k1", "a", 1)
	require.NoError(t, s.CommitBatch(ctx, first))
	second := testRecord(first.Block, "k1", "b", 2)
	require.NoError(t, s.CommitBatch(ctx, second))

	entry, ok, err := s.ReadEntry(ctx, []byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.Entry{Value: []byte("b"), Version: 2}, entry)
}

func TestCommitBatch_Tombstone(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := testRecord(ir.Block{}, "k1", "a", 1)
	require.NoError(t, s.CommitBatch(ctx, first))

	del := testRecord(first.Block, "k1", "", 2)
	del.Changes[0].Deleted = true
	require.NoError(t, s.CommitBatch(ctx, del))

	_, ok, err := s.ReadEntry(ctx, []byte("k1"))
	require.NoError(t, err)
	assert.False(t, ok)

	state, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, state, 1)
	assert.True(t, state[0].Deleted)
	assert.Equal(t, uint64(2), state[0].Version)
	assert.Nil(t, state[0].Value)
}

func TestCommitBatch_RejectsChainMismatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := testRecord(ir.Block{}, "k1", "a", 1)
	require.NoError(t, s.CommitBatch(ctx, first))

	// A second batch that claims to follow genesis does not extend the head.
	stale := testRecord(ir.Block{}, "k2", "b", 1)
	stale.Seq = 2
	err := s.CommitBatch(ctx, stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChainMismatch))

	_, ok, err := s.ReadEntry(ctx, []byte("k2"))
	require.NoError(t, err)
	assert.False(t, ok, "rejected batch must not write state")
}

func TestCommitBatch_RollsBackOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := testRecord(ir.Block{}, "k1", "a", 1)
	rec.Results = append(rec.Results, ir.ResultRow{Key: []byte("k1"), Outcome: ir.Outcome(99)})

	err := s.CommitBatch(ctx, rec)
	require.Error(t, err)

	_, ok, err := s.LastBlock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "failed batch must not be visible")

	state, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestCommitBatch_DuplicateSeqFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := testRecord(ir.Block{}, "k1", "a", 1)
	require.NoError(t, s.CommitBatch(ctx, first))

	dup := testRecord(first.Block, "k1", "b", 2)
	dup.Seq = first.Seq
	assert.Error(t, s.CommitBatch(ctx, dup))
}
