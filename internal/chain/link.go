package chain

import (
	"crypto/sha256"
	"hash"
	"sync"

	"github.com/ordokr/LMS/internal/ir"
)

// Link computes the hash of a block with the given predecessor and
// commitment using SHA-256.
func Link(prev, commitment ir.Hash) ir.Hash {
	return LinkWith(sha256.New(), prev, commitment)
}

// LinkWith computes a block hash with hasher. hasher is reset first.
func LinkWith(hasher hash.Hash, prev, commitment ir.Hash) ir.Hash {
	return ir.HashWithDomain(hasher, ir.DomainLink, prev[:], commitment[:])
}

// Seal builds the next block after prev. The zero Block is the genesis
// predecessor, so the first sealed block has index 1.
func Seal(prev ir.Block, commitment ir.Hash) ir.Block {
	next := ir.Block{
		Index:      prev.Index + 1,
		PrevHash:   prev.Hash,
		Commitment: commitment,
	}
	next.Hash = Link(next.PrevHash, commitment)
	return next
}

// CommitmentSource looks up the content commitment sealed under a block hash.
type CommitmentSource interface {
	Commitment(blockHash ir.Hash) (ir.Hash, bool)
}

// CommitmentChecker is a LinkChecker that recomputes the link from the
// commitment recorded for current.
type CommitmentChecker struct {
	source  CommitmentSource
	newHash func() hash.Hash
}

// CheckerOption configures a CommitmentChecker.
type CheckerOption func(*CommitmentChecker)

// WithHasher replaces the SHA-256 hash factory.
func WithHasher(newHash func() hash.Hash) CheckerOption {
	return func(c *CommitmentChecker) {
		c.newHash = newHash
	}
}

// NewCommitmentChecker creates a checker that reads commitments from source.
func NewCommitmentChecker(source CommitmentSource, opts ...CheckerOption) *CommitmentChecker {
	c := &CommitmentChecker{source: source, newHash: sha256.New}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckLink implements LinkChecker. An unknown current hash never links.
func (c *CommitmentChecker) CheckLink(prev, current ir.Hash) bool {
	commitment, ok := c.source.Commitment(current)
	if !ok {
		return false
	}
	return LinkWith(c.newHash(), prev, commitment) == current
}

// Ledger is an in-memory CommitmentSource.
type Ledger struct {
	mu          sync.RWMutex
	commitments map[ir.Hash]ir.Hash
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{commitments: make(map[ir.Hash]ir.Hash)}
}

// Record stores the commitment of b.
func (l *Ledger) Record(b ir.Block) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commitments[b.Hash] = b.Commitment
}

// Commitment implements CommitmentSource.
func (l *Ledger) Commitment(blockHash ir.Hash) (ir.Hash, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.commitments[blockHash]
	return c, ok
}

// Len returns the number of recorded blocks.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.commitments)
}
