package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/queryir"
)

// ParseRules compiles a CUE source holding a top-level "rule" struct:
//
//	rule: "mirror-users": {
//		when:  { kind: "put", prefix: "user/" }
//		where: "from state where key == bound.key and version >= 1"
//		then:  { kind: "put", key: "mirror/${key}", value: "${value}" }
//	}
//
// Rules are returned in declaration order. Compilation stops at the first
// error; use Validate for a full report on each rule.
func ParseRules(src string) ([]ir.SyncRule, error) {
	return ParseRulesFile("rules.cue", src)
}

// ParseRulesFile is ParseRules with positions reported against filename.
func ParseRulesFile(filename, src string) ([]ir.SyncRule, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Field:   "rule",
			Message: "no rule definitions found",
			Pos:     v.Pos(),
		}
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []ir.SyncRule
	for iter.Next() {
		rule, err := CompileRule(iter.Value())
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

// ParseRule compiles a source that defines exactly one rule.
func ParseRule(src string) (*ir.SyncRule, error) {
	rules, err := ParseRules(src)
	if err != nil {
		return nil, err
	}
	if len(rules) != 1 {
		return nil, &CompileError{
			Field:   "rule",
			Message: fmt.Sprintf("expected exactly one rule, found %d", len(rules)),
		}
	}
	return &rules[0], nil
}

// CompileRule parses a CUE value into a SyncRule.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: "mirror": { ... }`)
//	rule, err := CompileRule(v.LookupPath(cue.ParsePath(`rule."mirror"`)))
func CompileRule(v cue.Value) (*ir.SyncRule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rule := &ir.SyncRule{}

	// The ID is the struct label, quoted in CUE when it contains dashes.
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		rule.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	rule.When, err = parseWhenClause(v)
	if err != nil {
		return nil, err
	}

	whereVal := v.LookupPath(cue.ParsePath("where"))
	if whereVal.Exists() {
		where, err := parseWhereClause(whereVal)
		if err != nil {
			return nil, err
		}
		rule.Where = where
	}

	rule.Then, err = parseThenClause(v)
	if err != nil {
		return nil, err
	}

	return rule, nil
}

// stringField reads an optional string field of v. ok is false when the
// field is absent.
func stringField(v cue.Value, path, field string) (s string, ok bool, err error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err = fv.String()
	if err != nil {
		return "", true, &CompileError{
			Field:   field,
			Message: "must be a string",
			Pos:     fv.Pos(),
		}
	}
	return s, true, nil
}

func parseWhenClause(v cue.Value) (ir.WhenClause, error) {
	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return ir.WhenClause{}, &CompileError{
			Field:   "when",
			Message: "when clause is required",
			Pos:     v.Pos(),
		}
	}

	var when ir.WhenClause
	kind, ok, err := stringField(whenVal, "kind", "when.kind")
	if err != nil {
		return when, err
	}
	if !ok {
		return when, &CompileError{
			Field:   "when.kind",
			Message: "when clause requires 'kind' field (\"put\", \"delete\" or \"cas\")",
			Pos:     whenVal.Pos(),
		}
	}
	if !ir.ValidRuleKinds[kind] {
		return when, &CompileError{
			Field:   "when.kind",
			Message: fmt.Sprintf("invalid kind %q, must be \"put\", \"delete\" or \"cas\"", kind),
			Pos:     whenVal.LookupPath(cue.ParsePath("kind")).Pos(),
		}
	}
	when.Kind = kind

	if when.Prefix, _, err = stringField(whenVal, "prefix", "when.prefix"); err != nil {
		return when, err
	}

	outcome, ok, err := stringField(whenVal, "outcome", "when.outcome")
	if err != nil {
		return when, err
	}
	if ok {
		o, err := ir.ParseOutcome(outcome)
		if err != nil {
			return when, &CompileError{
				Field:   "when.outcome",
				Message: err.Error(),
				Pos:     whenVal.LookupPath(cue.ParsePath("outcome")).Pos(),
			}
		}
		when.Outcome = o.String()
	}

	return when, nil
}

// parseWhereClause parses the query text and stores its optimized AST.
func parseWhereClause(v cue.Value) (*ir.WhereClause, error) {
	text, err := v.String()
	if err != nil {
		return nil, &CompileError{
			Field:   "where",
			Message: "where must be a query string",
			Pos:     v.Pos(),
		}
	}

	q, err := queryir.Parse(text)
	if err != nil {
		return nil, &CompileError{
			Field:   "where",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	ast, err := queryir.Encode(queryir.Optimize(q))
	if err != nil {
		return nil, &CompileError{
			Field:   "where",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}

	return &ir.WhereClause{Query: text, AST: ast}, nil
}

func parseThenClause(v cue.Value) (ir.ThenClause, error) {
	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return ir.ThenClause{}, &CompileError{
			Field:   "then",
			Message: "then clause is required",
			Pos:     v.Pos(),
		}
	}

	var then ir.ThenClause
	kind, ok, err := stringField(thenVal, "kind", "then.kind")
	if err != nil {
		return then, err
	}
	if !ok {
		return then, &CompileError{
			Field:   "then.kind",
			Message: "then clause requires 'kind' field (\"put\" or \"delete\")",
			Pos:     thenVal.Pos(),
		}
	}
	then.Kind = kind

	key, ok, err := stringField(thenVal, "key", "then.key")
	if err != nil {
		return then, err
	}
	if !ok {
		return then, &CompileError{
			Field:   "then.key",
			Message: "then clause requires 'key' field",
			Pos:     thenVal.Pos(),
		}
	}
	then.Key = key

	if then.Value, _, err = stringField(thenVal, "value", "then.value"); err != nil {
		return then, err
	}

	return then, nil
}
