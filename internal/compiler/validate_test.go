package compiler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/ir"
)

func validRule() ir.SyncRule {
	return ir.SyncRule{
		ID:    "mirror",
		When:  ir.WhenClause{Kind: "put", Prefix: "user/"},
		Where: &ir.WhereClause{Query: "from state where key == bound.key"},
		Then:  ir.ThenClause{Kind: "put", Key: "mirror/${key}", Value: "${value}"},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_ValidRule(t *testing.T) {
	rule := validRule()
	assert.Empty(t, Validate(rule))
	assert.Empty(t, Validate(&rule))
}

func TestValidate_ParsedRulesAreValid(t *testing.T) {
	rules, err := ParseRules(mirrorRules)
	require.NoError(t, err)
	assert.Empty(t, Validate(rules))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.SyncRule)
		code   string
		field  string
	}{
		{"missing id", func(r *ir.SyncRule) { r.ID = " " }, ErrMissingRuleClause, "id"},
		{"bad when kind", func(r *ir.SyncRule) { r.When.Kind = "merge" }, ErrInvalidRuleKind, "when.kind"},
		{"bad outcome", func(r *ir.SyncRule) { r.When.Outcome = "maybe" }, ErrInvalidOutcome, "when.outcome"},
		{"where does not parse", func(r *ir.SyncRule) { r.Where.Query = "from state where" }, ErrInvalidWhereClause, "where"},
		{"where unknown source", func(r *ir.SyncRule) { r.Where.Query = "from users" }, ErrInvalidWhereClause, "where"},
		{"where unknown bound variable", func(r *ir.SyncRule) { r.Where.Query = "from state where key == bound.owner" }, ErrUndefinedBoundVariable, "where"},
		{"bad then kind", func(r *ir.SyncRule) { r.Then.Kind = "cas" }, ErrInvalidThenClause, "then.kind"},
		{"delete with value", func(r *ir.SyncRule) { r.Then.Kind = "delete" }, ErrInvalidThenClause, "then.value"},
		{"empty then key", func(r *ir.SyncRule) { r.Then.Key = "" }, ErrInvalidThenClause, "then.key"},
		{"unknown template variable", func(r *ir.SyncRule) { r.Then.Value = "${owner}" }, ErrUndefinedBoundVariable, "then.value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(&rule)
			errs := Validate(rule)
			require.Len(t, errs, 1, "%v", errs)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	rule := ir.SyncRule{
		When: ir.WhenClause{Kind: "merge"},
		Then: ir.ThenClause{Kind: "cas"},
	}
	assert.Equal(t,
		[]string{ErrMissingRuleClause, ErrInvalidRuleKind, ErrInvalidThenClause, ErrInvalidThenClause},
		codes(Validate(rule)))
}

func TestValidate_DuplicateIDs(t *testing.T) {
	errs := Validate([]ir.SyncRule{validRule(), validRule()})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateRuleID, errs[0].Code)
	assert.Equal(t, "rules[1].id", errs[0].Field)
}

func TestValidate_UnsupportedType(t *testing.T) {
	errs := Validate("rule")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "then.key", Message: "then key is required", Code: ErrInvalidThenClause}
	assert.Equal(t, "[E113] then.key: then key is required", e.Error())

	e.Line = 4
	assert.Equal(t, "[E113] line 4: then.key: then key is required", e.Error())

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"field":"then.key","message":"then key is required","code":"E113","line":4}`, string(data))
}
