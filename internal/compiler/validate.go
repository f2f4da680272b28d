package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/queryir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// SyncRule errors (E110-E119)
	ErrInvalidRuleKind        = "E110" // when.kind is not put/delete/cas
	ErrInvalidOutcome         = "E111" // unknown when.outcome
	ErrInvalidWhereClause     = "E112" // where query does not parse or validate
	ErrInvalidThenClause      = "E113" // invalid then clause
	ErrUndefinedBoundVariable = "E114" // bound variable not defined
	ErrMissingRuleClause      = "E115" // missing required clause
	ErrDuplicateRuleID        = "E116" // two rules share an ID
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// boundNames are the trigger fields a rule may reference, as bound.<name>
// in where queries and ${<name>} in then templates.
var boundNames = map[string]bool{"key": true, "value": true}

// Validate validates compiled rules.
// Returns all errors found (does not fail-fast).
// Accepts a SyncRule (value or pointer) or a []ir.SyncRule.
func Validate(v any) []ValidationError {
	switch rule := v.(type) {
	case *ir.SyncRule:
		return validateSyncRule(rule)
	case ir.SyncRule:
		return validateSyncRule(&rule)
	case []ir.SyncRule:
		return validateRuleSet(rule)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateRuleSet(rules []ir.SyncRule) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		rule := &rules[i]
		if rule.ID != "" && seen[rule.ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rules[%d].id", i),
				Message: fmt.Sprintf("duplicate rule id %q", rule.ID),
				Code:    ErrDuplicateRuleID,
			})
		}
		seen[rule.ID] = true
		errs = append(errs, validateSyncRule(rule)...)
	}
	return errs
}

func validateSyncRule(rule *ir.SyncRule) []ValidationError {
	var errs []ValidationError

	// E115: rules are addressed by ID
	if strings.TrimSpace(rule.ID) == "" {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: "rule id is required",
			Code:    ErrMissingRuleClause,
		})
	}

	// E110
	if !ir.ValidRuleKinds[rule.When.Kind] {
		errs = append(errs, ValidationError{
			Field:   "when.kind",
			Message: fmt.Sprintf("invalid kind %q, must be \"put\", \"delete\" or \"cas\"", rule.When.Kind),
			Code:    ErrInvalidRuleKind,
		})
	}

	// E111
	if rule.When.Outcome != "" {
		if _, err := ir.ParseOutcome(rule.When.Outcome); err != nil {
			errs = append(errs, ValidationError{
				Field:   "when.outcome",
				Message: err.Error(),
				Code:    ErrInvalidOutcome,
			})
		}
	}

	if rule.Where != nil {
		errs = append(errs, validateWhere(rule.Where)...)
	}

	errs = append(errs, validateThen(rule.Then)...)
	return errs
}

func validateWhere(where *ir.WhereClause) []ValidationError {
	var errs []ValidationError

	q, err := queryir.Parse(where.Query)
	if err != nil {
		return []ValidationError{{
			Field:   "where",
			Message: err.Error(),
			Code:    ErrInvalidWhereClause,
		}}
	}

	res := queryir.Validate(q)
	for _, msg := range res.Errors {
		errs = append(errs, ValidationError{
			Field:   "where",
			Message: msg,
			Code:    ErrInvalidWhereClause,
		})
	}

	// E114: bound.<name> must name a trigger field
	for _, name := range extractBoundVariableRefs(where.Query) {
		if !boundNames[name] {
			errs = append(errs, ValidationError{
				Field:   "where",
				Message: fmt.Sprintf("undefined bound variable %q, expected bound.key or bound.value", "bound."+name),
				Code:    ErrUndefinedBoundVariable,
			})
		}
	}
	return errs
}

func validateThen(then ir.ThenClause) []ValidationError {
	var errs []ValidationError

	// E113
	switch then.Kind {
	case "put":
	case "delete":
		if then.Value != "" {
			errs = append(errs, ValidationError{
				Field:   "then.value",
				Message: "delete takes no value",
				Code:    ErrInvalidThenClause,
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "then.kind",
			Message: fmt.Sprintf("invalid kind %q, must be \"put\" or \"delete\"", then.Kind),
			Code:    ErrInvalidThenClause,
		})
	}
	if strings.TrimSpace(then.Key) == "" {
		errs = append(errs, ValidationError{
			Field:   "then.key",
			Message: "then key is required",
			Code:    ErrInvalidThenClause,
		})
	}

	// E114
	templates := []struct{ field, tmpl string }{
		{"then.key", then.Key},
		{"then.value", then.Value},
	}
	for _, t := range templates {
		field, tmpl := t.field, t.tmpl
		for _, name := range extractTemplateRefs(tmpl) {
			if !boundNames[name] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("undefined variable ${%s} in %q", name, tmpl),
					Code:    ErrUndefinedBoundVariable,
				})
			}
		}
	}
	return errs
}

// boundVarPattern matches "bound.variable_name" references in expressions.
var boundVarPattern = regexp.MustCompile(`bound\.([a-zA-Z_][a-zA-Z0-9_]*)`)

// extractBoundVariableRefs extracts bound variable names from an expression string.
func extractBoundVariableRefs(expr string) []string {
	matches := boundVarPattern.FindAllStringSubmatch(expr, -1)
	vars := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) > 1 {
			vars = append(vars, match[1])
		}
	}
	return vars
}

// templatePattern matches ${name} placeholders in then templates.
var templatePattern = regexp.MustCompile(`\$\{([^}]*)\}`)

func extractTemplateRefs(tmpl string) []string {
	matches := templatePattern.FindAllStringSubmatch(tmpl, -1)
	vars := make([]string, 0, len(matches))
	for _, match := range matches {
		vars = append(vars, match[1])
	}
	return vars
}
