package ir

import (
	"bytes"
	"fmt"
	"strings"
)

// OpKind selects the mutation an Operation performs.
type OpKind uint8

const (
	// OpPut writes Value unconditionally.
	OpPut OpKind = iota + 1
	// OpDelete removes the key if present.
	OpDelete
	// OpCompareAndSwap writes Value only if the stored value equals Expected.
	OpCompareAndSwap
)

var opKindNames = map[OpKind]string{
	OpPut:            "put",
	OpDelete:         "delete",
	OpCompareAndSwap: "cas",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

// ParseOpKind accepts "put", "delete" and "cas" (case insensitive).
func ParseOpKind(s string) (OpKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "put":
		return OpPut, nil
	case "delete", "del":
		return OpDelete, nil
	case "cas", "compare_and_swap", "compareandswap":
		return OpCompareAndSwap, nil
	}
	return 0, fmt.Errorf("unknown operation kind %q", s)
}

// Operation is a single state mutation request.
// The engine only reads it; any bytes it retains are copied.
type Operation struct {
	Key      []byte `json:"key" cbor:"1,keyasint"`
	Kind     OpKind `json:"kind" cbor:"2,keyasint"`
	Value    []byte `json:"value,omitempty" cbor:"3,keyasint,omitempty"`
	// Expected is nil for "no expectation"; an empty, non-nil Expected
	// matches an empty stored value, so its presence is always encoded.
	Expected []byte `json:"expected,omitempty" cbor:"4,keyasint"`
}

// Put builds a Put operation.
func Put(key, value string) Operation {
	return Operation{Key: []byte(key), Kind: OpPut, Value: []byte(value)}
}

// Delete builds a Delete operation.
func Delete(key string) Operation {
	return Operation{Key: []byte(key), Kind: OpDelete}
}

// CAS builds a CompareAndSwap operation.
func CAS(key, expected, value string) Operation {
	return Operation{Key: []byte(key), Kind: OpCompareAndSwap, Expected: []byte(expected), Value: []byte(value)}
}

// Validate reports why an operation cannot be applied, or nil.
func (op Operation) Validate() error {
	if len(op.Key) == 0 {
		return fmt.Errorf("key is required")
	}
	switch op.Kind {
	case OpPut, OpDelete:
	case OpCompareAndSwap:
		if op.Expected == nil {
			return fmt.Errorf("compare-and-swap on %q requires an expected value", op.Key)
		}
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
	return nil
}

// Outcome is the per-operation result recorded in a ResultRow.
type Outcome uint8

const (
	// OutcomeApplied means the mutation took effect.
	OutcomeApplied Outcome = iota + 1
	// OutcomeConflict means a compare-and-swap did not match.
	OutcomeConflict
	// OutcomeNotFound means a delete targeted an absent key.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotFound:
		return "not_found"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "applied":
		return OutcomeApplied, nil
	case "conflict":
		return OutcomeConflict, nil
	case "not_found", "notfound":
		return OutcomeNotFound, nil
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// ResultRow is the outcome of one operation.
// NewVersion is 0 when the operation produced no version (Conflict, NotFound);
// versions start at 1.
type ResultRow struct {
	Key        []byte  `json:"key" cbor:"1,keyasint"`
	Outcome    Outcome `json:"outcome" cbor:"2,keyasint"`
	NewVersion uint64  `json:"new_version,omitempty" cbor:"3,keyasint,omitempty"`
}

// Clone returns a deep copy of the row.
func (r ResultRow) Clone() ResultRow {
	r.Key = bytes.Clone(r.Key)
	return r
}

// Entry is the stored value of a key in SyncState.
type Entry struct {
	Value   []byte `json:"value"`
	Version uint64 `json:"version"`
}

// Block links one committed batch into the hash chain.
type Block struct {
	Index      uint64 `json:"index"`
	Hash       Hash   `json:"hash"`
	PrevHash   Hash   `json:"prev_hash"`
	Commitment Hash   `json:"commitment"`
}
