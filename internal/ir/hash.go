package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// HashSize is the size of every hash in the chain.
const HashSize = sha256.Size

// Domain prefixes for content-addressed hashing.
// The version suffix leaves room for algorithm migration.
const (
	DomainBatch = "lms/batch/v1"
	DomainLink  = "lms/link/v1"
)

// Hash is a fixed-size chain hash.
type Hash [HashSize]byte

// ZeroHash is the predecessor of the first block.
var ZeroHash Hash

// String returns the lowercase hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalText implements encoding.TextMarshaler (hex).
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler (hex).
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(raw) != HashSize {
		return h, fmt.Errorf("parse hash: got %d bytes, want %d", len(raw), HashSize)
	}
	copy(h[:], raw)
	return h, nil
}

// HashFromBytes copies a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("hash: got %d bytes, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// HashWithDomain computes H(domain || 0x00 || parts...).
// The null separator keeps the domain/data boundary unambiguous.
// hasher is reset before use.
func HashWithDomain(hasher hash.Hash, domain string, parts ...[]byte) Hash {
	hasher.Reset()
	hasher.Write([]byte(domain))
	hasher.Write([]byte{0x00})
	for _, p := range parts {
		hasher.Write(p)
	}
	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

// BatchCommitment is the content commitment of one sealed batch: the batch
// identity, its operations and their outcomes, in canonical JSON.
func BatchCommitment(batchID string, seq uint64, ops []Operation, rows []ResultRow) (Hash, error) {
	opsArr := make(Array, len(ops))
	for i, op := range ops {
		o := Object{
			"key":  String(hex.EncodeToString(op.Key)),
			"kind": String(op.Kind.String()),
		}
		if op.Value != nil {
			o["value"] = String(hex.EncodeToString(op.Value))
		}
		if op.Expected != nil {
			o["expected"] = String(hex.EncodeToString(op.Expected))
		}
		opsArr[i] = o
	}

	rowsArr := make(Array, len(rows))
	for i, r := range rows {
		rowsArr[i] = Object{
			"key":         String(hex.EncodeToString(r.Key)),
			"outcome":     String(r.Outcome.String()),
			"new_version": Int(int64(r.NewVersion)),
		}
	}

	doc := Object{
		"id":      String(batchID),
		"seq":     Int(int64(seq)),
		"ops":     opsArr,
		"results": rowsArr,
	}

	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return ZeroHash, fmt.Errorf("batch commitment: %w", err)
	}
	return HashWithDomain(sha256.New(), DomainBatch, canonical), nil
}
