package chain

import (
	"errors"
	"fmt"

	"github.com/ordokr/LMS/internal/ir"
)

var (
	// ErrNegativeCount is returned for a negative hash count.
	ErrNegativeCount = errors.New("hash count is negative")
	// ErrLengthMismatch is returned when the buffer is not count*32 bytes.
	ErrLengthMismatch = errors.New("hash buffer length does not match count")
)

// ParseHashes decodes count contiguous 32-byte hashes from buf.
func ParseHashes(buf []byte, count int) ([]ir.Hash, error) {
	if count < 0 {
		return nil, ErrNegativeCount
	}
	if count > len(buf)/ir.HashSize || len(buf) != count*ir.HashSize {
		return nil, fmt.Errorf("%w: %d bytes for %d hashes", ErrLengthMismatch, len(buf), count)
	}
	out := make([]ir.Hash, count)
	for i := range out {
		copy(out[i][:], buf[i*ir.HashSize:])
	}
	return out, nil
}

// EncodeHashes is the inverse of ParseHashes.
func EncodeHashes(hashes []ir.Hash) []byte {
	buf := make([]byte, 0, len(hashes)*ir.HashSize)
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

// Hashes extracts the block hashes of blocks in order.
func Hashes(blocks []ir.Block) []ir.Hash {
	out := make([]ir.Hash, len(blocks))
	for i, b := range blocks {
		out[i] = b.Hash
	}
	return out
}
