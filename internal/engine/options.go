package engine

import (
	"log/slog"
)

// DefaultMaxBatchSize bounds the number of operations in one batch.
const DefaultMaxBatchSize = 1000

// DefaultQueueDepth bounds the number of batches waiting in a Runner.
const DefaultQueueDepth = 64

// Option configures an Engine.
type Option func(*Engine)

// WithMaxBatchSize sets the largest accepted batch. n <= 0 keeps the default.
func WithMaxBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxBatchSize = n
		}
	}
}

// WithIDGenerator replaces the UUIDv7 batch ID generator.
func WithIDGenerator(g BatchIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithStore attaches durable storage. Open does this for recovered engines.
func WithStore(s Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}
