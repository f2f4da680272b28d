// Package chain verifies the hash chain formed by committed batches.
//
// Each committed batch seals a Block whose hash is
//
//	H("lms/link/v1" || 0x00 || prev || commitment)
//
// where prev is the previous block hash (zero for the first block) and
// commitment is the batch content commitment (see ir.BatchCommitment).
//
// Verification is pure: a Verifier holds no mutable state and its result
// depends only on its inputs and the LinkChecker it was built with.
package chain
