package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ordokr/LMS/internal/ir"
)

func TestNewRuntime_Durable(t *testing.T) {
	rt := NewRuntime(t, true)
	assert.NotNil(t, rt.Store())

	rows, block := Apply(t, rt, ir.Put("a", "1"), ir.Delete("missing"))
	assert.Equal(t, []ir.ResultRow{
		{Key: []byte("a"), Outcome: ir.OutcomeApplied, NewVersion: 1},
		{Key: []byte("missing"), Outcome: ir.OutcomeNotFound},
	}, rows)
	assert.Equal(t, uint64(1), block.Index)
	assert.Equal(t, 0, rt.LiveResults())
}

func TestNewRuntime_InMemory(t *testing.T) {
	rt := NewRuntime(t, false)
	assert.Nil(t, rt.Store())
	_, block := Apply(t, rt, ir.Put("a", "1"))
	_, next := Apply(t, rt, ir.Put("a", "2"))
	assert.Equal(t, block.Hash, next.PrevHash)
}
