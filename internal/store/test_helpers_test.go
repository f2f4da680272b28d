package store

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ordokr/LMS/internal/ir"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testRecord builds a one-put batch record that extends prev.
func testRecord(prev ir.Block, key, value string, version uint64) BatchRecord {
	seq := prev.Index + 1
	commitment := ir.HashWithDomain(sha256.New(), ir.DomainBatch, []byte(key), []byte(value))
	block := ir.Block{
		Index:      seq,
		PrevHash:   prev.Hash,
		Commitment: commitment,
	}
	block.Hash = ir.HashWithDomain(sha256.New(), ir.DomainLink, prev.Hash[:], commitment[:])

	return BatchRecord{
		Seq:     seq,
		ID:      "batch-" + key + "-" + value,
		OpCount: 1,
		Block:   block,
		Changes: []StateChange{{Key: []byte(key), Value: []byte(value), Version: version}},
		Results: []ir.ResultRow{{Key: []byte(key), Outcome: ir.OutcomeApplied, NewVersion: version}},
	}
}

// verifyPragma checks that a pragma reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
