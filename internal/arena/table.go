package arena

import (
	"fmt"
	"sync"

	"github.com/ordokr/LMS/internal/ir"
)

// Handle addresses a value in a Table. The low 32 bits are the slot index
// plus one; the high 32 bits are the slot generation. The zero Handle is
// never issued.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index+1))
}

func (h Handle) index() (uint32, bool) {
	low := uint32(h)
	if low == 0 {
		return 0, false
	}
	return low - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

func (h Handle) String() string {
	idx, ok := h.index()
	if !ok {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d@%d)", idx, h.generation())
}

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Table is a generation-checked handle table. Removing a value bumps the
// slot generation, so every handle issued for it becomes stale: use after
// release and double release are reported instead of aliasing a newer value.
// Table is safe for concurrent use.
type Table[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
	free  []uint32
	live  int
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{}
}

// Insert stores v and returns its handle.
func (t *Table[T]) Insert(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{gen: 1})
	}

	s := &t.slots[idx]
	s.value = v
	s.live = true
	t.live++
	return makeHandle(idx, s.gen)
}

// Get returns the value for h.
func (t *Table[T]) Get(h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Remove deletes the value for h and returns it. Every copy of h is stale
// afterwards.
func (t *Table[T]) Remove(h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	s, err := t.lookup(h)
	if err != nil {
		return zero, err
	}

	v := s.value
	s.value = zero
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	idx, _ := h.index()
	t.free = append(t.free, idx)
	t.live--
	return v, nil
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Drain removes every live value and returns them in slot order.
func (t *Table[T]) Drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []T
	var zero T
	for i := range t.slots {
		s := &t.slots[i]
		if !s.live {
			continue
		}
		out = append(out, s.value)
		s.value = zero
		s.live = false
		s.gen++
		if s.gen == 0 {
			s.gen = 1
		}
		t.free = append(t.free, uint32(i))
	}
	t.live = 0
	return out
}

func (t *Table[T]) lookup(h Handle) (*slot[T], error) {
	idx, ok := h.index()
	if !ok || int(idx) >= len(t.slots) {
		return nil, ir.NewError(ir.ErrCodeInvalidHandle, "%s was never issued", h)
	}
	s := &t.slots[idx]
	if !s.live || s.gen != h.generation() {
		return nil, ir.NewError(ir.ErrCodeStaleHandle, "%s refers to a released value", h)
	}
	return s, nil
}
