package queryir

import "github.com/ordokr/LMS/internal/ir"

// Query represents an abstract query in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
//
// Query types:
//   - Select: Basic source access with filtering and field bindings
//   - Join: Inner join of two selects on a shared field
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal_value
//   - BoundEquals: field = bound_variable
//   - Compare: field <op> literal_value
//   - Prefix: field starts with a string
//   - ColumnEquals: left.field = right.field (join condition)
//   - And: all predicates must be true
//   - Never: matches nothing (produced by the optimizer)
//
// OR predicates and subqueries are not part of the language.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select represents a basic source access query with filtering.
//
// Semantics:
//
//	SELECT <bindings> FROM <from> WHERE <filter>
//
// Example:
//
//	Select{
//	  From: "state",
//	  Filter: And{Predicates: []Predicate{
//	    Prefix{Field: "key", Prefix: "user/"},
//	    Compare{Field: "version", Op: OpGreaterEqual, Value: ir.Int(2)},
//	  }},
//	  Bindings: map[string]string{"key": "key", "value": "v"},
//	}
//
// An empty Bindings map selects every field of the source.
type Select struct {
	From     string            // Source name (see Sources)
	Filter   Predicate         // WHERE conditions (nil = no filter)
	Bindings map[string]string // source_field → output name
}

func (Select) queryNode() {}

// Join represents an inner join of two selects.
//
// Semantics:
//
//	SELECT <left bindings>, <right bindings>
//	FROM <left> INNER JOIN <right> ON <on>
//	WHERE <left filter> AND <right filter>
//
// Each side's Filter and Bindings refer to that side's fields only.
type Join struct {
	Left  Select
	Right Select
	On    Predicate // Join condition, normally ColumnEquals
}

func (Join) queryNode() {}

// Equals represents a field-equals-literal predicate.
//
//	Equals{Field: "outcome", Value: ir.String("applied")}
//
// Translates to SQL:
//
//	outcome = ?
type Equals struct {
	Field string   // Field name in current query source
	Value ir.Value // String, Int or Bool
}

func (Equals) predicateNode() {}

// BoundEquals represents a field-equals-bound-variable predicate.
//
// BoundVar follows the "bound.name" convention; the value is supplied at
// compile time (see querysql.SQLCompiler.BoundValues). Sync rules bind
// "bound.key" and "bound.value" to the triggering operation.
type BoundEquals struct {
	Field    string // Field name in current query source
	BoundVar string // e.g. "bound.key"
}

func (BoundEquals) predicateNode() {}

// CompareOp is an ordering comparison operator.
type CompareOp string

// Comparison operators.
const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
)

// Valid reports whether op is a known operator.
func (op CompareOp) Valid() bool {
	switch op {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	}
	return false
}

// Compare represents an ordered comparison against a literal.
//
//	Compare{Field: "version", Op: OpGreater, Value: ir.Int(3)}
//
// Strings compare bytewise, integers numerically.
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.Value // String or Int
}

func (Compare) predicateNode() {}

// Prefix matches fields that start with Prefix (bytewise).
type Prefix struct {
	Field  string
	Prefix string
}

func (Prefix) predicateNode() {}

// ColumnEquals compares a field of the left join side with a field of the
// right join side.
type ColumnEquals struct {
	Left  string
	Right string
}

func (ColumnEquals) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty Predicates slice is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Never matches no rows. The optimizer rewrites contradictory filters to
// Never so backends can skip execution.
type Never struct{}

func (Never) predicateNode() {}

// Sources lists the queryable sources and their fields.
var Sources = map[string][]string{
	"state":   {"key", "value", "version"},
	"results": {"batch_seq", "idx", "key", "outcome", "new_version"},
	"batches": {"seq", "id", "op_count"},
}

// HasField reports whether source has field.
func HasField(source, field string) bool {
	for _, f := range Sources[source] {
		if f == field {
			return true
		}
	}
	return false
}
