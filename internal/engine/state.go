package engine

import (
	"bytes"
	"slices"
	"strings"

	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/store"
)

// record is the stored form of one key. A deleted record is a tombstone: the
// key is absent but the version is kept so a later write continues from it.
type record struct {
	value   []byte
	version uint64
	deleted bool
}

func (r record) live() bool {
	return r.version > 0 && !r.deleted
}

// syncState is the committed key/value state. It is only touched with the
// engine mutex held.
type syncState struct {
	records map[string]record
	live    int
}

func newSyncState() *syncState {
	return &syncState{records: make(map[string]record)}
}

func (s *syncState) get(key string) (record, bool) {
	r, ok := s.records[key]
	return r, ok
}

func (s *syncState) put(key string, r record) {
	if old, ok := s.records[key]; ok && old.live() {
		s.live--
	}
	if r.live() {
		s.live++
	}
	s.records[key] = r
}

// commit merges a finished overlay.
func (s *syncState) commit(o *overlay) {
	for _, key := range o.order {
		s.put(key, o.changes[key])
	}
}

// overlay stages the writes of one batch on top of a syncState. Reads fall
// through to the base for keys the batch has not touched.
type overlay struct {
	base    *syncState
	changes map[string]record
	order   []string // first-touch order
}

func newOverlay(base *syncState) *overlay {
	return &overlay{base: base, changes: make(map[string]record)}
}

func (o *overlay) lookup(key string) record {
	if r, ok := o.changes[key]; ok {
		return r
	}
	r, _ := o.base.get(key)
	return r
}

func (o *overlay) set(key string, r record) {
	if _, ok := o.changes[key]; !ok {
		o.order = append(o.order, key)
	}
	o.changes[key] = r
}

// apply executes one operation and returns its outcome row.
// The operation has already been validated.
func (o *overlay) apply(op ir.Operation) ir.ResultRow {
	key := string(op.Key)
	cur := o.lookup(key)
	row := ir.ResultRow{Key: bytes.Clone(op.Key)}

	switch op.Kind {
	case ir.OpPut:
		row.NewVersion = cur.version + 1
		o.set(key, record{value: cloneValue(op.Value), version: row.NewVersion})
		row.Outcome = ir.OutcomeApplied

	case ir.OpDelete:
		if !cur.live() {
			row.Outcome = ir.OutcomeNotFound
			return row
		}
		row.NewVersion = cur.version + 1
		o.set(key, record{version: row.NewVersion, deleted: true})
		row.Outcome = ir.OutcomeApplied

	case ir.OpCompareAndSwap:
		// An absent key never matches: there is no stored value to compare.
		if !cur.live() || !bytes.Equal(cur.value, op.Expected) {
			row.Outcome = ir.OutcomeConflict
			return row
		}
		row.NewVersion = cur.version + 1
		o.set(key, record{value: cloneValue(op.Value), version: row.NewVersion})
		row.Outcome = ir.OutcomeApplied
	}
	return row
}

// stateChanges lists the final state of every key the batch touched, in
// first-touch order.
func (o *overlay) stateChanges() []store.StateChange {
	out := make([]store.StateChange, 0, len(o.order))
	for _, key := range o.order {
		r := o.changes[key]
		out = append(out, store.StateChange{
			Key:     []byte(key),
			Value:   r.value,
			Version: r.version,
			Deleted: r.deleted,
		})
	}
	return out
}

// cloneValue copies v; a nil value is stored as empty.
func cloneValue(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return bytes.Clone(v)
}

// sortedKeys returns the live keys with the given prefix in byte order.
func (s *syncState) sortedKeys(prefix string) []string {
	keys := make([]string, 0, s.live)
	for k, r := range s.records {
		if r.live() && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
