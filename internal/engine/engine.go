package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ordokr/LMS/internal/arena"
	"github.com/ordokr/LMS/internal/chain"
	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/store"
)

// Store is the durable storage an Engine persists batches to.
// Implemented by *store.Store.
type Store interface {
	CommitBatch(ctx context.Context, rec store.BatchRecord) error
	LoadState(ctx context.Context) ([]store.StateRow, error)
	LastBatch(ctx context.Context) (store.BatchInfo, bool, error)
	ReadBlocks(ctx context.Context, afterSeq uint64, limit int) ([]store.BatchInfo, error)
	chain.CommitmentSource
}

// Engine applies batches of operations to SyncState.
//
// Thread-safety: every method is safe for concurrent use. Process holds the
// engine mutex for the whole batch, so concurrent batches are serialized in
// lock acquisition order. Use Runner for FIFO submission order.
type Engine struct {
	mu      sync.Mutex
	state   *syncState
	head    ir.Block
	history []store.BatchInfo // in-memory chain; unused when a store is attached
	clock   *Clock
	ledger  *chain.Ledger
	closed  bool

	store        Store
	ids          BatchIDGenerator
	maxBatchSize int
	logger       *slog.Logger
	verifier     *chain.Verifier
}

// New creates an in-memory Engine with empty state.
func New(opts ...Option) *Engine {
	e := &Engine{
		state:        newSyncState(),
		clock:        NewClock(),
		ledger:       chain.NewLedger(),
		ids:          UUIDv7Generator{},
		maxBatchSize: DefaultMaxBatchSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	var source chain.CommitmentSource = e.ledger
	if e.store != nil {
		source = e.store
	}
	e.verifier = chain.NewVerifier(chain.NewCommitmentChecker(source))
	return e
}

// Open creates an Engine backed by s and recovers SyncState, the logical
// clock and the chain head from it.
func Open(ctx context.Context, s Store, opts ...Option) (*Engine, error) {
	e := New(append(opts, WithStore(s))...)

	rows, err := s.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	for _, r := range rows {
		e.state.put(string(r.Key), record{
			value:   r.Value,
			version: r.Version,
			deleted: r.Deleted,
		})
	}

	last, ok, err := s.LastBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	if ok {
		e.head = last.Block
		e.clock = NewClockAt(last.Seq)
	}

	e.logger.Info("engine recovered",
		"keys", e.state.live,
		"seq", e.clock.Current(),
		"head", e.head.Hash.String(),
	)
	return e, nil
}

// Process applies batch atomically and returns its result arena.
//
// Errors:
//   - EMPTY_BATCH: batch has no operations
//   - BATCH_TOO_LARGE: batch exceeds the configured maximum
//   - INVALID_OPERATION: an operation is malformed; nothing is applied
//   - CLOSED: the engine was closed
//   - PERSIST_FAILED: the store rejected the batch; SyncState is unchanged
//   - ctx.Err(): ctx was done before the batch started
func (e *Engine) Process(ctx context.Context, batch []ir.Operation) (*arena.Arena, error) {
	if err := e.validate(batch); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ir.NewError(ir.ErrCodeClosed, "engine is closed")
	}
	// Last cancellation point: once past here the batch runs to completion.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	seq := e.clock.Peek()
	e.logger.Debug("batch processing start",
		"seq", seq,
		"ops", len(batch),
		"event", "batch_processing_start",
	)

	ov := newOverlay(e.state)
	rows := make([]ir.ResultRow, len(batch))
	for i, op := range batch {
		rows[i] = ov.apply(op)
	}

	id := e.ids.Generate()
	commitment, err := ir.BatchCommitment(id, seq, batch, rows)
	if err != nil {
		return nil, fmt.Errorf("seal batch %d: %w", seq, err)
	}
	block := chain.Seal(e.head, commitment)

	info := store.BatchInfo{Seq: seq, ID: id, OpCount: len(batch), Block: block}
	if e.store != nil {
		rec := store.BatchRecord{
			Seq:     seq,
			ID:      id,
			OpCount: len(batch),
			Block:   block,
			Changes: ov.stateChanges(),
			Results: rows,
		}
		if err := e.store.CommitBatch(context.WithoutCancel(ctx), rec); err != nil {
			e.logger.Error("batch persist failed",
				"seq", seq,
				"batch_id", id,
				"error", err,
				"event", "batch_persist_failed",
			)
			return nil, ir.WrapError(ir.ErrCodePersistFailed, err, "persist batch %d", seq)
		}
	} else {
		e.history = append(e.history, info)
	}

	e.state.commit(ov)
	e.head = block
	e.clock.Next()
	e.ledger.Record(block)

	e.logger.Info("batch committed",
		"seq", seq,
		"batch_id", id,
		"ops", len(batch),
		"keys_touched", len(ov.order),
		"hash", block.Hash.String(),
		"duration", time.Since(start),
		"event", "batch_processing_complete",
	)

	return arena.New(id, seq, block, rows), nil
}

func (e *Engine) validate(batch []ir.Operation) error {
	if len(batch) == 0 {
		return ir.NewError(ir.ErrCodeEmptyBatch, "batch has no operations")
	}
	if len(batch) > e.maxBatchSize {
		err := ir.NewError(ir.ErrCodeBatchTooLarge, "batch has %d operations, limit is %d", len(batch), e.maxBatchSize)
		err.Details = map[string]string{
			"size":  fmt.Sprintf("%d", len(batch)),
			"limit": fmt.Sprintf("%d", e.maxBatchSize),
		}
		return err
	}
	for i, op := range batch {
		if verr := op.Validate(); verr != nil {
			err := ir.WrapError(ir.ErrCodeInvalidOperation, verr, "operation %d", i)
			err.Details = map[string]string{"index": fmt.Sprintf("%d", i)}
			return err
		}
	}
	return nil
}

// Get returns the live entry for key.
func (e *Engine) Get(key []byte) (ir.Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.state.get(string(key))
	if !ok || !r.live() {
		return ir.Entry{}, false
	}
	return ir.Entry{Value: bytes.Clone(r.value), Version: r.version}, true
}

// Len returns the number of live keys.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.live
}

// Head returns the block of the last committed batch; the zero Block before
// the first batch.
func (e *Engine) Head() ir.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.head
}

// Seq returns the seq of the last committed batch.
func (e *Engine) Seq() uint64 {
	return e.clock.Current()
}

// Snapshot copies every live entry under prefix ("" for all), keyed by
// string(key).
func (e *Engine) Snapshot(prefix string) map[string]ir.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := e.state.sortedKeys(prefix)
	out := make(map[string]ir.Entry, len(keys))
	for _, k := range keys {
		r := e.state.records[k]
		out[k] = ir.Entry{Value: bytes.Clone(r.value), Version: r.version}
	}
	return out
}

// Blocks returns up to limit committed batches with seq > afterSeq, oldest
// first. limit <= 0 means no limit.
func (e *Engine) Blocks(ctx context.Context, afterSeq uint64, limit int) ([]store.BatchInfo, error) {
	if e.store != nil {
		return e.store.ReadBlocks(ctx, afterSeq, limit)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := []store.BatchInfo{}
	for _, info := range e.history {
		if info.Seq <= afterSeq {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, info)
	}
	return out, nil
}

// Verifier returns a chain verifier that knows every batch this engine has
// committed (and, with a store, every batch ever persisted).
func (e *Engine) Verifier() *chain.Verifier {
	return e.verifier
}

// Close stops the engine. Later calls to Process return CLOSED. Close does
// not close the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.logger.Info("engine closed", "seq", e.clock.Current())
	return nil
}

