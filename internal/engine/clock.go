package engine

import "sync/atomic"

// Clock is the monotonic logical clock that numbers committed batches.
//
// Seq numbers are never derived from wall time. The engine reads Peek while
// it holds its mutex and calls Next only once a batch has committed, so a
// failed batch does not consume a number.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start.
// Used on recovery to resume after the last committed batch.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Peek returns the value the next call to Next will return.
func (c *Clock) Peek() uint64 {
	return c.seq.Load() + 1
}

// Current returns the last value handed out.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}
