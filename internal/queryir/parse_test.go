package queryir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/ir"
)

func TestParse_SelectAll(t *testing.T) {
	q, err := Parse("from state")
	require.NoError(t, err)
	assert.Equal(t, Select{From: "state", Bindings: map[string]string{}}, q)
}

func TestParse_WhereAndSelect(t *testing.T) {
	q, err := Parse(`FROM state WHERE key prefix 'user/' AND version >= 2 AND value == "x" SELECT key, value AS v`)
	require.NoError(t, err)

	assert.Equal(t, Select{
		From: "state",
		Filter: And{Predicates: []Predicate{
			Prefix{Field: "key", Prefix: "user/"},
			Compare{Field: "version", Op: OpGreaterEqual, Value: ir.Int(2)},
			Equals{Field: "value", Value: ir.String("x")},
		}},
		Bindings: map[string]string{"key": "key", "value": "v"},
	}, q)
}

func TestParse_SinglePredicateIsNotWrapped(t *testing.T) {
	q, err := Parse("from results where outcome == 'conflict'")
	require.NoError(t, err)
	assert.Equal(t, Equals{Field: "outcome", Value: ir.String("conflict")}, q.(Select).Filter)
}

func TestParse_Literals(t *testing.T) {
	tests := []struct {
		text string
		want Predicate
	}{
		{"from state where version == -3", Equals{Field: "version", Value: ir.Int(-3)}},
		{"from state where version < 10", Compare{Field: "version", Op: OpLess, Value: ir.Int(10)}},
		{"from state where version <= 10", Compare{Field: "version", Op: OpLessEqual, Value: ir.Int(10)}},
		{"from state where version > 1", Compare{Field: "version", Op: OpGreater, Value: ir.Int(1)}},
		{"from state where value = 'a'", Equals{Field: "value", Value: ir.String("a")}},
		{`from state where value == 'it\'s'`, Equals{Field: "value", Value: ir.String("it's")}},
		{"from state where value == true", Equals{Field: "value", Value: ir.Bool(true)}},
		{"from state where key == bound.key", BoundEquals{Field: "key", BoundVar: "bound.key"}},
		{"from state where state.key prefix 'a'", Prefix{Field: "key", Prefix: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			q, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.(Select).Filter)
		})
	}
}

func TestParse_Join(t *testing.T) {
	q, err := Parse("from state join results on key where results.outcome == 'applied' and key prefix 'a' select key, results.batch_seq as seq")
	require.NoError(t, err)

	assert.Equal(t, Join{
		Left: Select{
			From:     "state",
			Filter:   Prefix{Field: "key", Prefix: "a"},
			Bindings: map[string]string{"key": "key"},
		},
		Right: Select{
			From:     "results",
			Filter:   Equals{Field: "outcome", Value: ir.String("applied")},
			Bindings: map[string]string{"batch_seq": "seq"},
		},
		On: ColumnEquals{Left: "key", Right: "key"},
	}, q)
}

func TestParse_JoinExplicitColumns(t *testing.T) {
	q, err := Parse("from batches join results on seq == results.batch_seq")
	require.NoError(t, err)
	assert.Equal(t, ColumnEquals{Left: "seq", Right: "batch_seq"}, q.(Join).On)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		text   string
		offset int
	}{
		{"", 0},
		{"select key", 0},
		{"from", 4},
		{"from state where", 16},
		{"from state where key", 20},
		{"from state where key prefix 3", 28},
		{"from state where key == 'abc", 24},
		{"from state where key ~ 'a'", 21},
		{"from state select key, key", 23},
		{"from state extra", 11},
		{"from state where other.key == 1", 17},
		{"from state join state on key", 16},
		{"from state where key == bound.", 24},
		{"from state where version == 99999999999999999999", 28},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.offset, pe.Offset, pe.Message)
		})
	}
}
