package queryir

import (
	"fmt"

	"github.com/ordokr/LMS/internal/ir"
)

// ValidationResult contains the analysis of a query.
//
// Errors make a query unexecutable (unknown source or field). Warnings flag
// queries that run but are probably not what the author meant.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the query has no errors.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Validate checks sources, fields and literal types.
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{errors: []string{}, warnings: []string{}}
	v.validateQuery(query)
	return ValidationResult{Errors: v.errors, Warnings: v.warnings}
}

// validator accumulates findings during traversal.
type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case Join:
		v.validateSelect(query.Left)
		v.validateSelect(query.Right)
		v.validateJoinOn(query)
	case nil:
		v.addError("nil query")
	default:
		v.addError("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if _, ok := Sources[sel.From]; !ok {
		v.addError("unknown source %q", sel.From)
		return
	}
	for field := range sel.Bindings {
		if !HasField(sel.From, field) {
			v.addError("unknown field %q in source %q", field, sel.From)
		}
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.From, sel.Filter)
	}
}

func (v *validator) validateJoinOn(j Join) {
	switch on := j.On.(type) {
	case nil:
		v.addError("join of %q and %q has no condition", j.Left.From, j.Right.From)
	case ColumnEquals:
		if !HasField(j.Left.From, on.Left) {
			v.addError("unknown field %q in source %q", on.Left, j.Left.From)
		}
		if !HasField(j.Right.From, on.Right) {
			v.addError("unknown field %q in source %q", on.Right, j.Right.From)
		}
	default:
		v.addError("join condition must compare columns, got %T", j.On)
	}
}

func (v *validator) validatePredicate(source string, p Predicate) {
	checkField := func(field string) {
		if !HasField(source, field) {
			v.addError("unknown field %q in source %q", field, source)
		}
	}

	switch pred := p.(type) {
	case Equals:
		checkField(pred.Field)
		if pred.Value == nil {
			v.addError("field %q compared to no value", pred.Field)
		}
	case BoundEquals:
		checkField(pred.Field)
		if len(pred.BoundVar) <= len("bound.") || pred.BoundVar[:len("bound.")] != "bound." {
			v.addError("bound variable %q must look like bound.name", pred.BoundVar)
		}
	case Compare:
		checkField(pred.Field)
		if !pred.Op.Valid() {
			v.addError("unknown operator %q", pred.Op)
		}
		if _, isBool := pred.Value.(ir.Bool); isBool {
			v.addWarning("field %q ordered against a boolean", pred.Field)
		}
	case Prefix:
		checkField(pred.Field)
		if pred.Prefix == "" {
			v.addWarning("empty prefix on field %q matches every row", pred.Field)
		}
	case ColumnEquals:
		v.addError("column comparison is only valid as a join condition")
	case And:
		for _, child := range pred.Predicates {
			v.validatePredicate(source, child)
		}
	case Never:
		v.addWarning("filter can never match")
	default:
		v.addError("unknown predicate type: %T", p)
	}
}
