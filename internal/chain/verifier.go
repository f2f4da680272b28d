package chain

import "github.com/ordokr/LMS/internal/ir"

// LinkChecker reports whether current is the successor of prev.
type LinkChecker interface {
	CheckLink(prev, current ir.Hash) bool
}

// LinkCheckerFunc adapts a function to LinkChecker.
type LinkCheckerFunc func(prev, current ir.Hash) bool

// CheckLink calls f.
func (f LinkCheckerFunc) CheckLink(prev, current ir.Hash) bool {
	return f(prev, current)
}

// Verifier validates links and whole chains.
type Verifier struct {
	checker LinkChecker
}

// NewVerifier creates a Verifier backed by checker.
func NewVerifier(checker LinkChecker) *Verifier {
	return &Verifier{checker: checker}
}

// VerifyLink reports whether current follows prev.
func (v *Verifier) VerifyLink(prev, current ir.Hash) bool {
	return v.checker.CheckLink(prev, current)
}

// VerifyChain checks every adjacent pair and stops at the first broken link.
// Empty and single-element chains are valid.
func (v *Verifier) VerifyChain(hashes []ir.Hash) bool {
	_, broken := v.FirstBrokenLink(hashes)
	return !broken
}

// FirstBrokenLink returns the index i of the first hash that does not follow
// hashes[i-1]. ok is false when the whole chain is valid.
func (v *Verifier) FirstBrokenLink(hashes []ir.Hash) (i int, ok bool) {
	for i = 1; i < len(hashes); i++ {
		if !v.checker.CheckLink(hashes[i-1], hashes[i]) {
			return i, true
		}
	}
	return 0, false
}
