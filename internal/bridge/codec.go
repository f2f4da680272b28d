package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ordokr/LMS/internal/ir"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: cbor dec mode: %v", err))
	}
}

// EncodeOperations encodes a batch as deterministic CBOR.
func EncodeOperations(ops []ir.Operation) ([]byte, error) {
	buf, err := encMode.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("encode operations: %w", err)
	}
	return buf, nil
}

// DecodeOperations decodes a CBOR operation buffer holding exactly count
// operations.
func DecodeOperations(buf []byte, count int) ([]ir.Operation, error) {
	if count <= 0 || len(buf) == 0 {
		return nil, ir.NewError(ir.ErrCodeEmptyBatch, "batch has no operations")
	}
	var ops []ir.Operation
	if err := decMode.Unmarshal(buf, &ops); err != nil {
		return nil, ir.WrapError(ir.ErrCodeInvalidOperation, err, "malformed operation buffer")
	}
	if len(ops) == 0 {
		return nil, ir.NewError(ir.ErrCodeEmptyBatch, "batch has no operations")
	}
	if len(ops) != count {
		e := ir.NewError(ir.ErrCodeInvalidOperation, "buffer holds %d operations, count is %d", len(ops), count)
		e.Details = map[string]string{
			"decoded": fmt.Sprint(len(ops)),
			"count":   fmt.Sprint(count),
		}
		return nil, e
	}
	return ops, nil
}
