package bridge

import (
	"github.com/ordokr/LMS/internal/chain"
	"github.com/ordokr/LMS/internal/ir"
)

// VerifyLink reports whether current directly follows prev in the chain
// this runtime knows. It is false before Init.
func (r *Runtime) VerifyLink(prev, current ir.Hash) bool {
	release, err := r.acquire()
	if err != nil {
		return false
	}
	defer release()
	return r.engine.Verifier().VerifyLink(prev, current)
}

// VerifyChain verifies a buffer of count contiguous 32-byte hashes. A
// malformed buffer (length not count*32) is reported as an invalid chain.
func (r *Runtime) VerifyChain(buf []byte, count int) bool {
	valid, _ := r.CheckChain(buf, count)
	return valid
}

// CheckChain is VerifyChain that also returns the index of the first hash
// that does not follow its predecessor. firstBroken is -1 when the chain is
// valid or the buffer is malformed.
func (r *Runtime) CheckChain(buf []byte, count int) (valid bool, firstBroken int) {
	hashes, err := chain.ParseHashes(buf, count)
	if err != nil {
		r.logger.Debug("malformed hash buffer", "bytes", len(buf), "count", count, "error", err)
		return false, -1
	}

	release, err := r.acquire()
	if err != nil {
		return false, -1
	}
	defer release()

	if i, broken := r.engine.Verifier().FirstBrokenLink(hashes); broken {
		return false, i
	}
	return true, -1
}
