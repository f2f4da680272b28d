package engine

import (
	"context"
	"log/slog"

	"github.com/ordokr/LMS/internal/arena"
	"github.com/ordokr/LMS/internal/ir"
)

// Runner applies submitted batches in FIFO order from a single goroutine.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Stop(): safe from any goroutine
type Runner struct {
	engine *Engine
	queue  *jobQueue
	slots  chan struct{} // bounds queued batches
	logger *slog.Logger
}

// NewRunner creates a Runner over e that holds at most depth waiting
// batches. depth <= 0 uses DefaultQueueDepth.
func NewRunner(e *Engine, depth int) *Runner {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Runner{
		engine: e,
		queue:  newJobQueue(),
		slots:  make(chan struct{}, depth),
		logger: e.logger,
	}
}

// Submit queues batch and waits for its result. It blocks while the queue is
// full. If ctx is done before the batch starts, the batch is withdrawn and
// Submit returns ctx.Err(). Once the batch has started, Submit waits for it
// and returns its result whatever happens to ctx.
func (r *Runner) Submit(ctx context.Context, batch []ir.Operation) (*arena.Arena, error) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	j := &job{ctx: ctx, batch: batch, resultCh: make(chan jobResult, 1)}
	if !r.queue.Enqueue(j) {
		<-r.slots
		return nil, ir.NewError(ir.ErrCodeClosed, "runner is stopped")
	}

	select {
	case res := <-j.resultCh:
		return res.arena, res.err
	case <-ctx.Done():
		if j.abandon() {
			return nil, ctx.Err()
		}
		res := <-j.resultCh
		return res.arena, res.err
	}
}

// Run drains the queue until ctx is cancelled or Stop is called.
// Jobs still queued when ctx is cancelled fail with ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner starting")

	for {
		if j, ok := r.queue.TryDequeue(); ok {
			r.execute(j)
			continue
		}
		if r.queue.Drained() {
			r.logger.Info("runner stopping: queue closed")
			return nil
		}

		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping: context cancelled")
			r.queue.Close()
			r.failPending(ctx.Err())
			return ctx.Err()
		case <-r.queue.Wait():
		}
	}
}

// Stop closes the queue. Run returns after applying the batches already
// queued.
func (r *Runner) Stop() {
	r.queue.Close()
}

// Pending returns the number of queued batches.
func (r *Runner) Pending() int {
	return r.queue.Len()
}

func (r *Runner) execute(j *job) {
	<-r.slots
	if !j.start() {
		r.logger.Debug("batch withdrawn before start", "ops", len(j.batch))
		return
	}
	a, err := r.engine.Process(j.ctx, j.batch)
	if err != nil {
		r.logger.Debug("batch rejected", "ops", len(j.batch), "error", err)
	}
	j.resultCh <- jobResult{arena: a, err: err}
}

func (r *Runner) failPending(err error) {
	for {
		j, ok := r.queue.TryDequeue()
		if !ok {
			return
		}
		<-r.slots
		j.resultCh <- jobResult{err: err}
	}
}
