package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/ir"
)

func TestTableInsertGetRemove(t *testing.T) {
	tbl := NewTable[string]()

	h := tbl.Insert("a")
	assert.NotZero(t, h)
	assert.Equal(t, 1, tbl.Len())

	v, err := tbl.Get(h)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = tbl.Remove(h)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	assert.Equal(t, 0, tbl.Len())
}

func TestTableInvalidHandle(t *testing.T) {
	tbl := NewTable[int]()

	_, err := tbl.Get(0)
	assert.True(t, ir.HasCode(err, ir.ErrCodeInvalidHandle))

	_, err = tbl.Get(makeHandle(5, 1))
	assert.True(t, ir.HasCode(err, ir.ErrCodeInvalidHandle))
}

func TestTableDoubleRemoveIsStale(t *testing.T) {
	tbl := NewTable[int]()
	h := tbl.Insert(1)

	_, err := tbl.Remove(h)
	require.NoError(t, err)

	_, err = tbl.Remove(h)
	assert.True(t, ir.HasCode(err, ir.ErrCodeStaleHandle))
	_, err = tbl.Get(h)
	assert.True(t, ir.HasCode(err, ir.ErrCodeStaleHandle))
}

func TestTableReusedSlotDoesNotAlias(t *testing.T) {
	tbl := NewTable[string]()
	old := tbl.Insert("old")
	_, err := tbl.Remove(old)
	require.NoError(t, err)

	fresh := tbl.Insert("fresh")
	assert.NotEqual(t, old, fresh)

	_, err = tbl.Get(old)
	assert.True(t, ir.HasCode(err, ir.ErrCodeStaleHandle))

	v, err := tbl.Get(fresh)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestTableDrain(t *testing.T) {
	tbl := NewTable[int]()
	h1 := tbl.Insert(1)
	tbl.Insert(2)
	tbl.Insert(3)
	_, err := tbl.Remove(h1)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, tbl.Drain())
	assert.Equal(t, 0, tbl.Len())
	assert.Empty(t, tbl.Drain())
}

func TestTableConcurrentUse(t *testing.T) {
	tbl := NewTable[int]()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h := tbl.Insert(i*1000 + j)
				v, err := tbl.Get(h)
				assert.NoError(t, err)
				assert.Equal(t, i*1000+j, v)
				_, err = tbl.Remove(h)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, tbl.Len())
}
