package store

import (
	"fmt"

	"github.com/ordokr/LMS/internal/ir"
)

// Hashes are stored as 32-byte BLOBs.

func hashBytes(h ir.Hash) []byte {
	return h[:]
}

func scanHash(b []byte, column string) (ir.Hash, error) {
	h, err := ir.HashFromBytes(b)
	if err != nil {
		return ir.ZeroHash, fmt.Errorf("column %s: %w", column, err)
	}
	return h, nil
}

// Outcomes are stored by name so the table stays readable from the sqlite3
// shell.

func marshalOutcome(o ir.Outcome) (string, error) {
	switch o {
	case ir.OutcomeApplied, ir.OutcomeConflict, ir.OutcomeNotFound:
		return o.String(), nil
	}
	return "", fmt.Errorf("marshal outcome: unknown outcome %d", o)
}

func unmarshalOutcome(s string) (ir.Outcome, error) {
	o, err := ir.ParseOutcome(s)
	if err != nil {
		return 0, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return o, nil
}

// nonNil keeps empty values distinguishable from NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
