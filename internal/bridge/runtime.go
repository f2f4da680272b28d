package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ordokr/LMS/internal/arena"
	"github.com/ordokr/LMS/internal/engine"
	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/store"
)

// StringHandle addresses a string owned by the Runtime. The zero handle
// signals a failed parse or optimize.
type StringHandle = arena.Handle

// Option configures a Runtime.
type Option func(*Runtime)

// WithDBPath persists batches to a SQLite database at path. Without it the
// engine is in-memory and queries are unavailable.
func WithDBPath(path string) Option {
	return func(r *Runtime) { r.dbPath = path }
}

// WithEngineOptions passes options through to the engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(r *Runtime) { r.engineOpts = append(r.engineOpts, opts...) }
}

// WithQueueDepth bounds the number of batches waiting for the writer.
func WithQueueDepth(n int) Option {
	return func(r *Runtime) { r.queueDepth = n }
}

// WithLogger sets the runtime logger. It is also passed to the engine.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// Runtime is the lifecycle object behind the boundary surface.
//
// Init must be called before any other method and Teardown last; a torn
// down Runtime may be initialized again. Every method is safe for
// concurrent use.
type Runtime struct {
	dbPath     string
	engineOpts []engine.Option
	queueDepth int
	logger     *slog.Logger

	mu      sync.RWMutex
	ready   bool
	store   *store.Store
	engine  *engine.Engine
	runner  *engine.Runner
	stop    context.CancelFunc
	done    chan error
	results *arena.Table[*arena.Arena]
	strings *arena.Table[string]
}

// NewRuntime creates an uninitialized Runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init opens the store (if configured), recovers the engine and starts the
// FIFO writer.
//
// Errors: ALREADY_INITIALIZED if Init was called without a Teardown.
func (r *Runtime) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready {
		return ir.NewError(ir.ErrCodeAlreadyInitialized, "runtime is already initialized")
	}

	opts := append([]engine.Option{engine.WithLogger(r.logger)}, r.engineOpts...)

	var e *engine.Engine
	if r.dbPath != "" {
		st, err := store.Open(r.dbPath)
		if err != nil {
			return fmt.Errorf("init runtime: %w", err)
		}
		e, err = engine.Open(ctx, st, opts...)
		if err != nil {
			st.Close()
			return fmt.Errorf("init runtime: %w", err)
		}
		r.store = st
	} else {
		e = engine.New(opts...)
	}

	r.engine = e
	r.runner = engine.NewRunner(e, r.queueDepth)
	r.results = arena.NewTable[*arena.Arena]()
	r.strings = arena.NewTable[string]()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.stop = cancel
	r.done = make(chan error, 1)
	go func(runner *engine.Runner, done chan<- error) {
		done <- runner.Run(runCtx)
	}(r.runner, r.done)

	r.ready = true
	r.logger.Info("runtime initialized", "db", r.dbPath, "seq", e.Seq())
	return nil
}

// Teardown drains the writer, releases every live arena and string, closes
// the engine and the store.
//
// Errors: NOT_INITIALIZED if the runtime is not initialized.
func (r *Runtime) Teardown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.ready {
		return ir.NewError(ir.ErrCodeNotInitialized, "runtime is not initialized")
	}
	r.ready = false

	r.runner.Stop()
	runErr := <-r.done
	r.stop()

	leaked := 0
	for _, a := range r.results.Drain() {
		if a.Release() == nil {
			leaked++
		}
	}
	strs := len(r.strings.Drain())
	if leaked > 0 || strs > 0 {
		r.logger.Warn("runtime torn down with live handles", "results", leaked, "strings", strs)
	}

	var errs []error
	if runErr != nil {
		errs = append(errs, fmt.Errorf("runner: %w", runErr))
	}
	if err := r.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close engine: %w", err))
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	r.engine, r.runner, r.store = nil, nil, nil

	r.logger.Info("runtime torn down")
	return errors.Join(errs...)
}

// Initialized reports whether Init has succeeded without a later Teardown.
func (r *Runtime) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// acquire read-locks the runtime. The caller must call the returned
// function when done.
func (r *Runtime) acquire() (func(), error) {
	r.mu.RLock()
	if !r.ready {
		r.mu.RUnlock()
		return nil, ir.NewError(ir.ErrCodeNotInitialized, "runtime is not initialized")
	}
	return r.mu.RUnlock, nil
}

// Engine returns the engine, or nil before Init.
func (r *Runtime) Engine() *engine.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engine
}

// Store returns the durable store, or nil when running in memory.
func (r *Runtime) Store() *store.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store
}

// LiveResults returns the number of result handles not yet freed.
func (r *Runtime) LiveResults() int {
	release, err := r.acquire()
	if err != nil {
		return 0
	}
	defer release()
	return r.results.Len()
}

// LiveStrings returns the number of string handles not yet freed.
func (r *Runtime) LiveStrings() int {
	release, err := r.acquire()
	if err != nil {
		return 0
	}
	defer release()
	return r.strings.Len()
}
