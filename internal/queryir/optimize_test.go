package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/ir"
)

func filterOf(t *testing.T, q Query) Predicate {
	t.Helper()
	sel, ok := q.(Select)
	require.True(t, ok, "expected Select, got %T", q)
	return sel.Filter
}

func optimizeFilter(t *testing.T, p Predicate) Predicate {
	t.Helper()
	return filterOf(t, Optimize(Select{From: "state", Filter: p}))
}

func TestOptimize_NilFilter(t *testing.T) {
	assert.Nil(t, optimizeFilter(t, nil))
	assert.Nil(t, optimizeFilter(t, And{}))
}

func TestOptimize_FlattensAndUnwraps(t *testing.T) {
	got := optimizeFilter(t, And{Predicates: []Predicate{
		And{Predicates: []Predicate{Equals{Field: "key", Value: ir.String("a")}}},
	}})
	assert.Equal(t, Equals{Field: "key", Value: ir.String("a")}, got)
}

func TestOptimize_Dedupes(t *testing.T) {
	eq := Equals{Field: "value", Value: ir.String("x")}
	got := optimizeFilter(t, And{Predicates: []Predicate{eq, And{Predicates: []Predicate{eq}}, eq}})
	assert.Equal(t, eq, got)
}

func TestOptimize_MergesRanges(t *testing.T) {
	got := optimizeFilter(t, And{Predicates: []Predicate{
		Compare{Field: "version", Op: OpGreater, Value: ir.Int(1)},
		Compare{Field: "version", Op: OpGreaterEqual, Value: ir.Int(3)},
		Compare{Field: "version", Op: OpLess, Value: ir.Int(10)},
		Compare{Field: "version", Op: OpLessEqual, Value: ir.Int(10)},
	}})
	assert.Equal(t, And{Predicates: []Predicate{
		Compare{Field: "version", Op: OpLess, Value: ir.Int(10)},
		Compare{Field: "version", Op: OpGreaterEqual, Value: ir.Int(3)},
	}}, got)
}

func TestOptimize_PointRangeBecomesEquals(t *testing.T) {
	got := optimizeFilter(t, And{Predicates: []Predicate{
		Compare{Field: "version", Op: OpGreaterEqual, Value: ir.Int(4)},
		Compare{Field: "version", Op: OpLessEqual, Value: ir.Int(4)},
	}})
	assert.Equal(t, Equals{Field: "version", Value: ir.Int(4)}, got)
}

func TestOptimize_EqualsSubsumesRangeAndPrefix(t *testing.T) {
	got := optimizeFilter(t, And{Predicates: []Predicate{
		Prefix{Field: "key", Prefix: "user/"},
		Equals{Field: "key", Value: ir.String("user/7")},
		Compare{Field: "key", Op: OpGreater, Value: ir.String("user/")},
	}})
	assert.Equal(t, Equals{Field: "key", Value: ir.String("user/7")}, got)
}

func TestOptimize_KeepsLongestPrefix(t *testing.T) {
	got := optimizeFilter(t, And{Predicates: []Predicate{
		Prefix{Field: "key", Prefix: "a"},
		Prefix{Field: "key", Prefix: "abc"},
		Prefix{Field: "key", Prefix: "ab"},
	}})
	assert.Equal(t, Prefix{Field: "key", Prefix: "abc"}, got)
}

func TestOptimize_Contradictions(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
	}{
		{"two equalities", And{Predicates: []Predicate{
			Equals{Field: "key", Value: ir.String("a")},
			Equals{Field: "key", Value: ir.String("b")},
		}}},
		{"empty range", And{Predicates: []Predicate{
			Compare{Field: "version", Op: OpGreater, Value: ir.Int(5)},
			Compare{Field: "version", Op: OpLess, Value: ir.Int(5)},
		}}},
		{"inverted range", And{Predicates: []Predicate{
			Compare{Field: "version", Op: OpGreaterEqual, Value: ir.Int(9)},
			Compare{Field: "version", Op: OpLessEqual, Value: ir.Int(2)},
		}}},
		{"equality outside range", And{Predicates: []Predicate{
			Equals{Field: "version", Value: ir.Int(1)},
			Compare{Field: "version", Op: OpGreater, Value: ir.Int(1)},
		}}},
		{"disjoint prefixes", And{Predicates: []Predicate{
			Prefix{Field: "key", Prefix: "user/"},
			Prefix{Field: "key", Prefix: "group/"},
		}}},
		{"equality outside prefix", And{Predicates: []Predicate{
			Prefix{Field: "key", Prefix: "user/"},
			Equals{Field: "key", Value: ir.String("group/1")},
		}}},
		{"nested never", And{Predicates: []Predicate{
			Equals{Field: "key", Value: ir.String("a")},
			And{Predicates: []Predicate{Never{}}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Never{}, optimizeFilter(t, tt.pred))
		})
	}
}

func TestOptimize_DifferentFieldsNotCombined(t *testing.T) {
	got := optimizeFilter(t, And{Predicates: []Predicate{
		Equals{Field: "version", Value: ir.Int(2)},
		Equals{Field: "key", Value: ir.String("a")},
	}})
	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Field: "key", Value: ir.String("a")},
		Equals{Field: "version", Value: ir.Int(2)},
	}}, got)
}

func TestOptimize_MixedTypesKeptApart(t *testing.T) {
	got := optimizeFilter(t, And{Predicates: []Predicate{
		Equals{Field: "value", Value: ir.String("1")},
		Equals{Field: "value", Value: ir.Int(1)},
	}})
	and, ok := got.(And)
	require.True(t, ok, "got %T", got)
	assert.Len(t, and.Predicates, 2)
}

func TestOptimize_SortsByFieldThenKind(t *testing.T) {
	got := optimizeFilter(t, And{Predicates: []Predicate{
		Compare{Field: "version", Op: OpGreater, Value: ir.Int(0)},
		BoundEquals{Field: "key", BoundVar: "bound.key"},
		Prefix{Field: "value", Prefix: "x"},
		Equals{Field: "key", Value: ir.String("k")},
	}})
	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Field: "key", Value: ir.String("k")},
		BoundEquals{Field: "key", BoundVar: "bound.key"},
		Prefix{Field: "value", Prefix: "x"},
		Compare{Field: "version", Op: OpGreater, Value: ir.Int(0)},
	}}, got)
}

func TestOptimize_Deterministic(t *testing.T) {
	a := And{Predicates: []Predicate{
		Prefix{Field: "key", Prefix: "u"},
		Compare{Field: "version", Op: OpLess, Value: ir.Int(9)},
		Equals{Field: "value", Value: ir.String("v")},
	}}
	b := And{Predicates: []Predicate{a.Predicates[2], a.Predicates[0], a.Predicates[1]}}

	ea, err := Encode(Optimize(Select{From: "state", Filter: a}))
	require.NoError(t, err)
	eb, err := Encode(Optimize(Select{From: "state", Filter: b}))
	require.NoError(t, err)
	assert.Equal(t, string(ea), string(eb))
}

func TestOptimize_Idempotent(t *testing.T) {
	queries := []string{
		"from state",
		"from state where key prefix 'a' and key prefix 'ab' and version > 1 and version >= 1",
		"from state where value == 'x' and value == 1 and value == true and version < 3",
		"from state where version >= 2 and version <= 2",
		"from state where key == 'a' and key == 'b'",
		"from state join results on key where results.outcome == 'applied' and results.batch_seq > 3 and key == bound.key",
	}
	for _, text := range queries {
		t.Run(text, func(t *testing.T) {
			q, err := Parse(text)
			require.NoError(t, err)
			once := Optimize(q)
			twice := Optimize(once)
			assert.Equal(t, once, twice)
		})
	}
}

func TestOptimize_JoinSides(t *testing.T) {
	q, err := Parse("from state join results on key where key prefix 'a' and key prefix 'ab' and results.idx >= 0")
	require.NoError(t, err)
	j := Optimize(q).(Join)
	assert.Equal(t, Prefix{Field: "key", Prefix: "ab"}, j.Left.Filter)
	assert.Equal(t, Compare{Field: "idx", Op: OpGreaterEqual, Value: ir.Int(0)}, j.Right.Filter)
	assert.Equal(t, ColumnEquals{Left: "key", Right: "key"}, j.On)
}

func TestOptimize_DoesNotMutateInput(t *testing.T) {
	preds := []Predicate{
		Equals{Field: "key", Value: ir.String("a")},
		Equals{Field: "key", Value: ir.String("a")},
	}
	Optimize(Select{From: "state", Filter: And{Predicates: preds}})
	assert.Len(t, preds, 2)
	assert.Equal(t, Equals{Field: "key", Value: ir.String("a")}, preds[1])
}
