package queryir

import (
	"cmp"
	"slices"
	"strings"

	"github.com/ordokr/LMS/internal/ir"
)

// Optimize returns an equivalent query in normal form:
//
//   - nested And nodes are flattened and single-element Ands unwrapped
//   - duplicate predicates are removed
//   - range comparisons on the same field are merged to the tightest bounds
//   - equalities subsume compatible ranges and prefixes
//   - contradictions (two different equalities, an empty range, disjoint
//     prefixes) collapse the whole filter to Never
//   - remaining predicates are sorted by field, then kind, then value
//
// Optimize is pure and idempotent; Optimize(Optimize(q)) == Optimize(q).
// Predicates on different fields are never combined.
func Optimize(q Query) Query {
	switch query := q.(type) {
	case Select:
		return optimizeSelect(query)
	case Join:
		return Join{
			Left:  optimizeSelect(query.Left),
			Right: optimizeSelect(query.Right),
			On:    optimizePredicate(query.On),
		}
	}
	return q
}

func optimizeSelect(s Select) Select {
	s.Filter = optimizePredicate(s.Filter)
	return s
}

func optimizePredicate(p Predicate) Predicate {
	if p == nil {
		return nil
	}

	var flat []Predicate
	if flatten(p, &flat) {
		return Never{}
	}

	byField := map[string]*fieldPreds{}
	var fields []string
	var others []Predicate // BoundEquals, ColumnEquals
	for _, pred := range flat {
		field, ok := predicateField(pred)
		if !ok {
			others = append(others, pred)
			continue
		}
		// Group by field and literal type; only same-typed literals merge.
		group := field + "\x00" + valueType(pred)
		fp, seen := byField[group]
		if !seen {
			fp = &fieldPreds{field: field}
			byField[group] = fp
			fields = append(fields, group)
		}
		fp.add(pred)
	}

	var out []Predicate
	for _, f := range fields {
		preds, never := byField[f].reduce()
		if never {
			return Never{}
		}
		out = append(out, preds...)
	}
	out = append(out, others...)

	out = dedupe(out)
	slices.SortStableFunc(out, comparePredicates)

	return conjunction(out)
}

// flatten appends the leaves of p to out. It reports true if p contains
// Never.
func flatten(p Predicate, out *[]Predicate) bool {
	switch pred := p.(type) {
	case And:
		for _, child := range pred.Predicates {
			if child == nil {
				continue
			}
			if flatten(child, out) {
				return true
			}
		}
		return false
	case Never:
		return true
	}
	*out = append(*out, p)
	return false
}

func valueType(p Predicate) string {
	var v ir.Value
	switch pred := p.(type) {
	case Equals:
		v = pred.Value
	case Compare:
		v = pred.Value
	case Prefix:
		return "string"
	}
	switch v.(type) {
	case ir.Int:
		return "int"
	case ir.String:
		return "string"
	case ir.Bool:
		return "bool"
	}
	return "other"
}

func predicateField(p Predicate) (string, bool) {
	switch pred := p.(type) {
	case Equals:
		return pred.Field, true
	case Compare:
		return pred.Field, true
	case Prefix:
		return pred.Field, true
	}
	return "", false
}

// bound is one end of a range.
type bound struct {
	value     ir.Value
	inclusive bool
}

// fieldPreds collects the literal predicates on one field.
type fieldPreds struct {
	field    string
	eq       []ir.Value
	lower    *bound
	upper    *bound
	prefixes []string
	mixed    []Predicate // comparisons that cannot be merged; kept as is
}

func (fp *fieldPreds) add(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		fp.eq = append(fp.eq, pred.Value)
	case Prefix:
		fp.prefixes = append(fp.prefixes, pred.Prefix)
	case Compare:
		if _, isBool := pred.Value.(ir.Bool); isBool || !pred.Op.Valid() {
			fp.mixed = append(fp.mixed, pred)
			return
		}
		b := &bound{value: pred.Value, inclusive: pred.Op == OpLessEqual || pred.Op == OpGreaterEqual}
		switch pred.Op {
		case OpGreater, OpGreaterEqual:
			if fp.lower == nil {
				fp.lower = b
				return
			}
			c, ok := compareValues(b.value, fp.lower.value)
			switch {
			case !ok:
				fp.mixed = append(fp.mixed, pred)
			case c > 0 || (c == 0 && !b.inclusive):
				fp.lower = b
			}
		case OpLess, OpLessEqual:
			if fp.upper == nil {
				fp.upper = b
				return
			}
			c, ok := compareValues(b.value, fp.upper.value)
			switch {
			case !ok:
				fp.mixed = append(fp.mixed, pred)
			case c < 0 || (c == 0 && !b.inclusive):
				fp.upper = b
			}
		default:
			fp.mixed = append(fp.mixed, pred)
		}
	}
}

// reduce returns the simplified predicates for the field, or never=true if
// they cannot all hold.
func (fp *fieldPreds) reduce() (preds []Predicate, never bool) {
	// Range emptiness.
	if fp.lower != nil && fp.upper != nil {
		if c, ok := compareValues(fp.lower.value, fp.upper.value); ok {
			if c > 0 || (c == 0 && !(fp.lower.inclusive && fp.upper.inclusive)) {
				return nil, true
			}
			if c == 0 {
				fp.eq = append(fp.eq, fp.lower.value)
				fp.lower, fp.upper = nil, nil
			}
		}
	}

	// Prefixes: the longest must extend every other one.
	var prefix string
	hasPrefix := len(fp.prefixes) > 0
	for _, pf := range fp.prefixes {
		switch {
		case strings.HasPrefix(pf, prefix):
			prefix = pf
		case strings.HasPrefix(prefix, pf):
		default:
			return nil, true
		}
	}

	if len(fp.eq) > 0 {
		v := fp.eq[0]
		for _, other := range fp.eq[1:] {
			if !valuesEqual(v, other) {
				return nil, true
			}
		}
		keep := []Predicate{Equals{Field: fp.field, Value: v}}

		if fp.lower != nil {
			if c, ok := compareValues(v, fp.lower.value); ok {
				if c < 0 || (c == 0 && !fp.lower.inclusive) {
					return nil, true
				}
			} else {
				keep = append(keep, fp.lower.predicate(fp.field, true))
			}
		}
		if fp.upper != nil {
			if c, ok := compareValues(v, fp.upper.value); ok {
				if c > 0 || (c == 0 && !fp.upper.inclusive) {
					return nil, true
				}
			} else {
				keep = append(keep, fp.upper.predicate(fp.field, false))
			}
		}
		if hasPrefix {
			if s, ok := v.(ir.String); ok {
				if !strings.HasPrefix(string(s), prefix) {
					return nil, true
				}
			} else {
				keep = append(keep, Prefix{Field: fp.field, Prefix: prefix})
			}
		}
		return append(keep, fp.mixed...), false
	}

	if hasPrefix {
		preds = append(preds, Prefix{Field: fp.field, Prefix: prefix})
	}
	if fp.lower != nil {
		preds = append(preds, fp.lower.predicate(fp.field, true))
	}
	if fp.upper != nil {
		preds = append(preds, fp.upper.predicate(fp.field, false))
	}
	return append(preds, fp.mixed...), false
}

func (b *bound) predicate(field string, lower bool) Compare {
	op := OpLess
	switch {
	case lower && b.inclusive:
		op = OpGreaterEqual
	case lower:
		op = OpGreater
	case b.inclusive:
		op = OpLessEqual
	}
	return Compare{Field: field, Op: op, Value: b.value}
}

// compareValues orders two values of the same comparable type.
// ok is false for mismatched or unordered types.
func compareValues(a, b ir.Value) (int, bool) {
	switch av := a.(type) {
	case ir.Int:
		if bv, ok := b.(ir.Int); ok {
			return cmp.Compare(av, bv), true
		}
	case ir.String:
		if bv, ok := b.(ir.String); ok {
			return strings.Compare(string(av), string(bv)), true
		}
	}
	return 0, false
}

func valuesEqual(a, b ir.Value) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	ab, aok := a.(ir.Bool)
	bb, bok := b.(ir.Bool)
	return aok && bok && ab == bb
}

func dedupe(preds []Predicate) []Predicate {
	seen := make(map[string]bool, len(preds))
	out := preds[:0]
	for _, p := range preds {
		key := predicateKey(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// predicateKey is the canonical encoding of p, used for equality and as the
// final ordering tiebreaker.
func predicateKey(p Predicate) string {
	obj, err := encodePredicate(p)
	if err != nil {
		return ""
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return ""
	}
	return string(data)
}

var kindRank = map[string]int{
	"equals":        0,
	"bound_equals":  1,
	"prefix":        2,
	"compare":       3,
	"column_equals": 4,
}

func comparePredicates(a, b Predicate) int {
	af, bf := sortField(a), sortField(b)
	if c := strings.Compare(af, bf); c != 0 {
		return c
	}
	if c := cmp.Compare(kindRank[predicateType(a)], kindRank[predicateType(b)]); c != 0 {
		return c
	}
	return strings.Compare(predicateKey(a), predicateKey(b))
}

func sortField(p Predicate) string {
	switch pred := p.(type) {
	case BoundEquals:
		return pred.Field
	case ColumnEquals:
		return pred.Left
	}
	f, _ := predicateField(p)
	return f
}
