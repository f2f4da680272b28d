package bridge

import (
	"strconv"

	"github.com/ordokr/LMS/internal/ir"
)

// TextOp is the textual form of an operation read from JSON request bodies,
// YAML batch files and harness scenarios. Keys and values are UTF-8 text.
type TextOp struct {
	Key      string  `json:"key" yaml:"key"`
	Kind     string  `json:"kind" yaml:"kind"`
	Value    *string `json:"value,omitempty" yaml:"value,omitempty"`
	Expected *string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// Operation converts t. A nil Value or Expected stays nil.
func (t TextOp) Operation() (ir.Operation, error) {
	kind, err := ir.ParseOpKind(t.Kind)
	if err != nil {
		return ir.Operation{}, err
	}
	op := ir.Operation{Key: []byte(t.Key), Kind: kind}
	if t.Value != nil {
		op.Value = []byte(*t.Value)
	}
	if t.Expected != nil {
		op.Expected = []byte(*t.Expected)
	}
	return op, nil
}

// ParseTextOps converts ops in order. The first bad kind fails the whole
// batch with INVALID_OPERATION; per-operation validation is left to the
// engine.
func ParseTextOps(ops []TextOp) ([]ir.Operation, error) {
	out := make([]ir.Operation, len(ops))
	for i, t := range ops {
		op, err := t.Operation()
		if err != nil {
			e := ir.WrapError(ir.ErrCodeInvalidOperation, err, "operation %d", i)
			e.Details = map[string]string{"index": strconv.Itoa(i)}
			return nil, e
		}
		out[i] = op
	}
	return out, nil
}
