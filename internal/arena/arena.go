// Package arena owns the output of one processed batch.
//
// An Arena is created once, when a batch completes, and is read with Count
// and CopyOut until its owner calls Release. Arenas are not shared: each
// belongs to the caller that received it. Table provides generation-checked
// handles for callers that must refer to arenas (or any other owned value)
// across a boundary where Go pointers cannot travel.
package arena

import (
	"sync"

	"github.com/ordokr/LMS/internal/ir"
)

// Arena holds the ordered ResultRows of one batch.
// Row i corresponds to operation i of the batch.
type Arena struct {
	mu       sync.Mutex
	rows     []ir.ResultRow
	count    uint64
	released bool

	batchID string
	seq     uint64
	block   ir.Block
}

// New takes ownership of rows. Callers must not modify rows afterwards.
func New(batchID string, seq uint64, block ir.Block, rows []ir.ResultRow) *Arena {
	return &Arena{
		rows:    rows,
		count:   uint64(len(rows)),
		batchID: batchID,
		seq:     seq,
		block:   block,
	}
}

// Count returns the number of rows. It is fixed at creation and stays valid
// after Release.
func (a *Arena) Count() uint64 {
	return a.count
}

// CopyOut deep-copies every row into dst and returns the number copied.
// If dst is shorter than Count nothing is written and the error has code
// BUFFER_TOO_SMALL. CopyOut may be called any number of times.
func (a *Arena) CopyOut(dst []ir.ResultRow) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return 0, ir.NewError(ir.ErrCodeReleased, "arena for batch %d already released", a.seq)
	}
	if uint64(len(dst)) < a.count {
		return 0, ir.NewBufferTooSmallError(len(dst), a.count)
	}
	for i, row := range a.rows {
		dst[i] = row.Clone()
	}
	return len(a.rows), nil
}

// Rows returns a deep copy of all rows.
func (a *Arena) Rows() ([]ir.ResultRow, error) {
	out := make([]ir.ResultRow, a.count)
	if _, err := a.CopyOut(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Release frees the rows. Releasing twice is a caller error and reports
// RELEASED.
func (a *Arena) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return ir.NewError(ir.ErrCodeReleased, "arena for batch %d released twice", a.seq)
	}
	a.rows = nil
	a.released = true
	return nil
}

// Released reports whether Release has been called.
func (a *Arena) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

// BatchID returns the identifier assigned to the batch.
func (a *Arena) BatchID() string { return a.batchID }

// Seq returns the batch sequence number.
func (a *Arena) Seq() uint64 { return a.seq }

// Block returns the chain block sealed for the batch.
func (a *Arena) Block() ir.Block { return a.block }
