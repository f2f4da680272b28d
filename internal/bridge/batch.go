package bridge

import (
	"context"
	"errors"

	"github.com/ordokr/LMS/internal/arena"
	"github.com/ordokr/LMS/internal/ir"
)

// ProcessBatch decodes a CBOR buffer of count operations, applies it as one
// batch and returns a handle to its result arena. The caller must free the
// handle with FreeResult.
//
// Errors: NOT_INITIALIZED, EMPTY_BATCH, INVALID_OPERATION, BATCH_TOO_LARGE,
// PERSIST_FAILED, CLOSED, or ctx.Err().
func (r *Runtime) ProcessBatch(ctx context.Context, buf []byte, count int) (arena.Handle, error) {
	ops, err := DecodeOperations(buf, count)
	if err != nil {
		return 0, err
	}
	return r.ProcessOps(ctx, ops)
}

// ProcessOps is ProcessBatch for already decoded operations.
//
// Batches are applied in submission order. If ctx is done while the batch
// is still queued, it is withdrawn and ctx.Err() is returned. Once it has
// started, ProcessOps waits for it and returns its handle even if ctx is
// done by then.
func (r *Runtime) ProcessOps(ctx context.Context, ops []ir.Operation) (arena.Handle, error) {
	release, err := r.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	a, err := r.runner.Submit(ctx, ops)
	if err != nil {
		return 0, err
	}
	return r.results.Insert(a), nil
}

// ResultCount returns the number of rows in the arena behind h.
//
// Errors: NOT_INITIALIZED, INVALID_HANDLE, STALE_HANDLE.
func (r *Runtime) ResultCount(h arena.Handle) (uint64, error) {
	a, release, err := r.result(h)
	if err != nil {
		return 0, err
	}
	defer release()
	return a.Count(), nil
}

// CopyResults copies every row of the arena behind h into dst and returns
// the number copied. dst is untouched on error.
//
// Errors: NOT_INITIALIZED, INVALID_HANDLE, STALE_HANDLE, BUFFER_TOO_SMALL.
func (r *Runtime) CopyResults(h arena.Handle, dst []ir.ResultRow) (int, error) {
	a, release, err := r.result(h)
	if err != nil {
		return 0, err
	}
	defer release()
	return a.CopyOut(dst)
}

// ResultBlock returns the chain block of the batch behind h.
func (r *Runtime) ResultBlock(h arena.Handle) (ir.Block, error) {
	a, release, err := r.result(h)
	if err != nil {
		return ir.Block{}, err
	}
	defer release()
	return a.Block(), nil
}

// ResultBatchID returns the batch ID of the batch behind h.
func (r *Runtime) ResultBatchID(h arena.Handle) (string, error) {
	a, release, err := r.result(h)
	if err != nil {
		return "", err
	}
	defer release()
	return a.BatchID(), nil
}

// FreeResult releases the arena behind h. Freeing twice reports
// STALE_HANDLE.
func (r *Runtime) FreeResult(h arena.Handle) error {
	release, err := r.acquire()
	if err != nil {
		return err
	}
	defer release()

	a, err := r.results.Remove(h)
	if err != nil {
		return err
	}
	return a.Release()
}

// Committed is a batch copied out of its result arena.
type Committed struct {
	ID    string
	Block ir.Block
	Rows  []ir.ResultRow
}

// Collect copies out the batch behind h and frees h.
func (r *Runtime) Collect(h arena.Handle) (Committed, error) {
	a, release, err := r.result(h)
	if err != nil {
		return Committed{}, err
	}
	rows, err := a.Rows()
	c := Committed{ID: a.BatchID(), Block: a.Block(), Rows: rows}
	release()
	return c, errors.Join(err, r.FreeResult(h))
}

// Apply is ProcessOps followed by Collect.
func (r *Runtime) Apply(ctx context.Context, ops []ir.Operation) (Committed, error) {
	h, err := r.ProcessOps(ctx, ops)
	if err != nil {
		return Committed{}, err
	}
	return r.Collect(h)
}

func (r *Runtime) result(h arena.Handle) (*arena.Arena, func(), error) {
	release, err := r.acquire()
	if err != nil {
		return nil, nil, err
	}
	a, err := r.results.Get(h)
	if err != nil {
		release()
		return nil, nil, err
	}
	return a, release, nil
}
