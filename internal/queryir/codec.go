package queryir

import (
	"fmt"

	"github.com/ordokr/LMS/internal/ir"
)

// Encode serializes q as canonical JSON (RFC 8785). Equal queries encode to
// identical bytes.
//
// Shape:
//
//	{"type":"select","from":"state","filter":{...},"bindings":{"key":"key"}}
//	{"type":"join","left":{select},"right":{select},"on":{...}}
//	{"type":"equals","field":"outcome","value":"applied"}
//	{"type":"bound_equals","field":"key","var":"bound.key"}
//	{"type":"compare","field":"version","op":">=","value":2}
//	{"type":"prefix","field":"key","prefix":"user/"}
//	{"type":"column_equals","left":"key","right":"key"}
//	{"type":"and","predicates":[...]}
//	{"type":"never"}
func Encode(q Query) ([]byte, error) {
	obj, err := encodeQuery(q)
	if err != nil {
		return nil, err
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return data, nil
}

// Decode parses the output of Encode.
func Decode(data []byte) (Query, error) {
	v, err := ir.DecodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("decode query: expected object, got %T", v)
	}
	q, err := decodeQuery(obj)
	if err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	return q, nil
}

func encodeQuery(q Query) (ir.Object, error) {
	switch query := q.(type) {
	case Select:
		return encodeSelect(query)
	case Join:
		left, err := encodeSelect(query.Left)
		if err != nil {
			return nil, err
		}
		right, err := encodeSelect(query.Right)
		if err != nil {
			return nil, err
		}
		obj := ir.Object{"type": ir.String("join"), "left": left, "right": right}
		if query.On != nil {
			on, err := encodePredicate(query.On)
			if err != nil {
				return nil, err
			}
			obj["on"] = on
		}
		return obj, nil
	case nil:
		return nil, fmt.Errorf("encode query: nil query")
	}
	return nil, fmt.Errorf("encode query: unsupported query type %T", q)
}

func encodeSelect(s Select) (ir.Object, error) {
	bindings := make(ir.Object, len(s.Bindings))
	for field, alias := range s.Bindings {
		bindings[field] = ir.String(alias)
	}
	obj := ir.Object{
		"type":     ir.String("select"),
		"from":     ir.String(s.From),
		"bindings": bindings,
	}
	if s.Filter != nil {
		f, err := encodePredicate(s.Filter)
		if err != nil {
			return nil, err
		}
		obj["filter"] = f
	}
	return obj, nil
}

func predicateType(p Predicate) string {
	switch p.(type) {
	case Equals:
		return "equals"
	case BoundEquals:
		return "bound_equals"
	case Compare:
		return "compare"
	case Prefix:
		return "prefix"
	case ColumnEquals:
		return "column_equals"
	case And:
		return "and"
	case Never:
		return "never"
	}
	return ""
}

func encodePredicate(p Predicate) (ir.Object, error) {
	obj := ir.Object{"type": ir.String(predicateType(p))}
	switch pred := p.(type) {
	case Equals:
		if pred.Value == nil {
			return nil, fmt.Errorf("encode predicate: equals on %q has no value", pred.Field)
		}
		obj["field"] = ir.String(pred.Field)
		obj["value"] = pred.Value
	case BoundEquals:
		obj["field"] = ir.String(pred.Field)
		obj["var"] = ir.String(pred.BoundVar)
	case Compare:
		if pred.Value == nil {
			return nil, fmt.Errorf("encode predicate: compare on %q has no value", pred.Field)
		}
		obj["field"] = ir.String(pred.Field)
		obj["op"] = ir.String(string(pred.Op))
		obj["value"] = pred.Value
	case Prefix:
		obj["field"] = ir.String(pred.Field)
		obj["prefix"] = ir.String(pred.Prefix)
	case ColumnEquals:
		obj["left"] = ir.String(pred.Left)
		obj["right"] = ir.String(pred.Right)
	case And:
		arr := make(ir.Array, 0, len(pred.Predicates))
		for _, child := range pred.Predicates {
			c, err := encodePredicate(child)
			if err != nil {
				return nil, err
			}
			arr = append(arr, c)
		}
		obj["predicates"] = arr
	case Never:
	default:
		return nil, fmt.Errorf("encode predicate: unsupported predicate type %T", p)
	}
	return obj, nil
}

func decodeQuery(obj ir.Object) (Query, error) {
	switch typ, _ := obj["type"].(ir.String); typ {
	case "select":
		return decodeSelect(obj)
	case "join":
		left, err := subObject(obj, "left")
		if err != nil {
			return nil, err
		}
		right, err := subObject(obj, "right")
		if err != nil {
			return nil, err
		}
		l, err := decodeSelect(left)
		if err != nil {
			return nil, fmt.Errorf("left: %w", err)
		}
		r, err := decodeSelect(right)
		if err != nil {
			return nil, fmt.Errorf("right: %w", err)
		}
		j := Join{Left: l, Right: r}
		if on, ok := obj["on"].(ir.Object); ok {
			if j.On, err = decodePredicate(on); err != nil {
				return nil, fmt.Errorf("on: %w", err)
			}
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unknown query type %q", typ)
	}
}

func decodeSelect(obj ir.Object) (Select, error) {
	if typ, _ := obj["type"].(ir.String); typ != "select" {
		return Select{}, fmt.Errorf("expected select, got %q", typ)
	}
	from, err := stringField(obj, "from")
	if err != nil {
		return Select{}, err
	}
	s := Select{From: from, Bindings: map[string]string{}}
	if b, ok := obj["bindings"].(ir.Object); ok {
		for field, alias := range b {
			as, ok := alias.(ir.String)
			if !ok {
				return Select{}, fmt.Errorf("binding %q: expected string", field)
			}
			s.Bindings[field] = string(as)
		}
	}
	if f, ok := obj["filter"].(ir.Object); ok {
		if s.Filter, err = decodePredicate(f); err != nil {
			return Select{}, fmt.Errorf("filter: %w", err)
		}
	}
	return s, nil
}

func decodePredicate(obj ir.Object) (Predicate, error) {
	typ, _ := obj["type"].(ir.String)
	switch typ {
	case "equals":
		field, err := stringField(obj, "field")
		if err != nil {
			return nil, err
		}
		v, err := literalField(obj)
		if err != nil {
			return nil, err
		}
		return Equals{Field: field, Value: v}, nil
	case "bound_equals":
		field, err := stringField(obj, "field")
		if err != nil {
			return nil, err
		}
		bv, err := stringField(obj, "var")
		if err != nil {
			return nil, err
		}
		return BoundEquals{Field: field, BoundVar: bv}, nil
	case "compare":
		field, err := stringField(obj, "field")
		if err != nil {
			return nil, err
		}
		op, err := stringField(obj, "op")
		if err != nil {
			return nil, err
		}
		if !CompareOp(op).Valid() {
			return nil, fmt.Errorf("unknown operator %q", op)
		}
		v, err := literalField(obj)
		if err != nil {
			return nil, err
		}
		return Compare{Field: field, Op: CompareOp(op), Value: v}, nil
	case "prefix":
		field, err := stringField(obj, "field")
		if err != nil {
			return nil, err
		}
		pf, err := stringField(obj, "prefix")
		if err != nil {
			return nil, err
		}
		return Prefix{Field: field, Prefix: pf}, nil
	case "column_equals":
		l, err := stringField(obj, "left")
		if err != nil {
			return nil, err
		}
		r, err := stringField(obj, "right")
		if err != nil {
			return nil, err
		}
		return ColumnEquals{Left: l, Right: r}, nil
	case "and":
		arr, ok := obj["predicates"].(ir.Array)
		if !ok {
			return nil, fmt.Errorf("and: predicates must be an array")
		}
		preds := make([]Predicate, 0, len(arr))
		for i, elem := range arr {
			child, ok := elem.(ir.Object)
			if !ok {
				return nil, fmt.Errorf("and[%d]: expected object", i)
			}
			p, err := decodePredicate(child)
			if err != nil {
				return nil, fmt.Errorf("and[%d]: %w", i, err)
			}
			preds = append(preds, p)
		}
		return And{Predicates: preds}, nil
	case "never":
		return Never{}, nil
	}
	return nil, fmt.Errorf("unknown predicate type %q", typ)
}

func subObject(obj ir.Object, key string) (ir.Object, error) {
	sub, ok := obj[key].(ir.Object)
	if !ok {
		return nil, fmt.Errorf("%s: expected object", key)
	}
	return sub, nil
}

func stringField(obj ir.Object, key string) (string, error) {
	s, ok := obj[key].(ir.String)
	if !ok {
		return "", fmt.Errorf("%s: expected string", key)
	}
	return string(s), nil
}

func literalField(obj ir.Object) (ir.Value, error) {
	switch v := obj["value"].(type) {
	case ir.String, ir.Int, ir.Bool:
		return v, nil
	case nil:
		return nil, fmt.Errorf("value: missing")
	default:
		return nil, fmt.Errorf("value: unsupported literal %T", v)
	}
}
