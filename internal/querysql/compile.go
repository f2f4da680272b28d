package querysql

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/queryir"
)

// table maps a query source onto its SQLite table.
type table struct {
	name  string   // SQLite table
	order []string // stable ordering columns
	live  string   // extra row filter, "" for none
	blobs map[string]bool
}

var tables = map[string]table{
	"state": {
		name:  "sync_state",
		order: []string{"key"},
		live:  "deleted = 0",
		blobs: map[string]bool{"key": true, "value": true},
	},
	"results": {
		name:  "batch_results",
		order: []string{"batch_seq", "idx"},
		blobs: map[string]bool{"key": true},
	},
	"batches": {
		name:  "batches",
		order: []string{"seq"},
	},
}

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// Every query carries an ORDER BY over the source's primary key, and every
// literal is bound as a parameter.
type SQLCompiler struct {
	// BoundValues holds the values for BoundEquals predicates, keyed by
	// variable name ("bound.key").
	BoundValues map[string]any
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		BoundValues: make(map[string]any),
	}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case queryir.Join:
		return c.compileJoin(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func lookupTable(source string) (table, error) {
	t, ok := tables[source]
	if !ok {
		return table{}, fmt.Errorf("unknown source %q", source)
	}
	return t, nil
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	t, err := lookupTable(q.From)
	if err != nil {
		return "", nil, err
	}

	cols, err := compileBindings(q.From, q.Bindings, false)
	if err != nil {
		return "", nil, err
	}

	where, params, err := c.compileWhere(q)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s AS %s", strings.Join(cols, ", "), t.name, q.From)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY " + strings.Join(orderKey(q.From), ", "))
	return b.String(), params, nil
}

func (c *SQLCompiler) compileJoin(j queryir.Join) (string, []any, error) {
	lt, err := lookupTable(j.Left.From)
	if err != nil {
		return "", nil, fmt.Errorf("join left: %w", err)
	}
	rt, err := lookupTable(j.Right.From)
	if err != nil {
		return "", nil, fmt.Errorf("join right: %w", err)
	}
	if j.Left.From == j.Right.From {
		return "", nil, fmt.Errorf("cannot join %q with itself", j.Left.From)
	}

	on, ok := j.On.(queryir.ColumnEquals)
	if !ok {
		return "", nil, fmt.Errorf("join condition must be a column comparison, got %T", j.On)
	}
	if !queryir.HasField(j.Left.From, on.Left) || !queryir.HasField(j.Right.From, on.Right) {
		return "", nil, fmt.Errorf("unknown join column %s.%s = %s.%s", j.Left.From, on.Left, j.Right.From, on.Right)
	}

	leftCols, err := compileBindings(j.Left.From, j.Left.Bindings, len(j.Left.Bindings) == 0)
	if err != nil {
		return "", nil, err
	}
	rightCols, err := compileBindings(j.Right.From, j.Right.Bindings, len(j.Right.Bindings) == 0)
	if err != nil {
		return "", nil, err
	}

	leftWhere, leftParams, err := c.compileWhere(j.Left)
	if err != nil {
		return "", nil, fmt.Errorf("compile left filter: %w", err)
	}
	rightWhere, rightParams, err := c.compileWhere(j.Right)
	if err != nil {
		return "", nil, fmt.Errorf("compile right filter: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s AS %s INNER JOIN %s AS %s ON %s.%s = %s.%s",
		strings.Join(append(leftCols, rightCols...), ", "),
		lt.name, j.Left.From,
		rt.name, j.Right.From,
		j.Left.From, on.Left, j.Right.From, on.Right)
	where := append(leftWhere, rightWhere...)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	order := append(orderKey(j.Left.From), orderKey(j.Right.From)...)
	b.WriteString(" ORDER BY " + strings.Join(order, ", "))

	return b.String(), append(leftParams, rightParams...), nil
}

// compileWhere returns the conjuncts for one side, live-row filter first.
func (c *SQLCompiler) compileWhere(q queryir.Select) ([]string, []any, error) {
	t := tables[q.From]
	var where []string
	if t.live != "" {
		where = append(where, q.From+"."+t.live)
	}
	if q.Filter == nil {
		return where, nil, nil
	}
	sql, params, err := c.compilePredicate(q.From, q.Filter)
	if err != nil {
		return nil, nil, fmt.Errorf("compile filter: %w", err)
	}
	return append(where, sql), params, nil
}

// compileBindings converts a bindings map to a SELECT column list.
// qualified names unaliased outputs "source.field", for joins.
func compileBindings(source string, bindings map[string]string, qualified bool) ([]string, error) {
	fields := selectedFields(source, bindings)
	cols := make([]string, 0, len(fields))
	for _, field := range fields {
		if !queryir.HasField(source, field) {
			return nil, fmt.Errorf("unknown field %q in source %q", field, source)
		}
		alias := outputName(source, bindings, field, qualified)
		cols = append(cols, fmt.Sprintf("%s.%s AS %s", source, field, quoteIdent(alias)))
	}
	return cols, nil
}

// selectedFields lists the selected source fields: every field in source
// order when bindings is empty, otherwise the bound fields sorted.
func selectedFields(source string, bindings map[string]string) []string {
	if len(bindings) == 0 {
		return slices.Clone(queryir.Sources[source])
	}
	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func outputName(source string, bindings map[string]string, field string, qualified bool) string {
	if alias, ok := bindings[field]; ok {
		return alias
	}
	if qualified {
		return source + "." + field
	}
	return field
}

func orderKey(source string) []string {
	t := tables[source]
	out := make([]string, len(t.order))
	for i, col := range t.order {
		out[i] = source + "." + col + " ASC"
	}
	return out
}

// quoteIdent quotes an output name. Aliases come from query text.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (c *SQLCompiler) compilePredicate(source string, p queryir.Predicate) (string, []any, error) {
	column := func(field string) (string, error) {
		if !queryir.HasField(source, field) {
			return "", fmt.Errorf("unknown field %q in source %q", field, source)
		}
		return source + "." + field, nil
	}
	blob := func(field string) bool {
		return tables[source].blobs[field]
	}

	switch pred := p.(type) {
	case queryir.Equals:
		col, err := column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		param, err := valueParam(pred.Value, blob(pred.Field))
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", pred.Field, err)
		}
		return col + " = ?", []any{param}, nil

	case queryir.BoundEquals:
		col, err := column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		val, ok := c.BoundValues[pred.BoundVar]
		if !ok {
			return "", nil, fmt.Errorf("no value bound for %q", pred.BoundVar)
		}
		if s, isString := val.(string); isString && blob(pred.Field) {
			val = []byte(s)
		}
		return col + " = ?", []any{val}, nil

	case queryir.Compare:
		col, err := column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		if !pred.Op.Valid() {
			return "", nil, fmt.Errorf("unknown operator %q", pred.Op)
		}
		param, err := valueParam(pred.Value, blob(pred.Field))
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", pred.Field, err)
		}
		return fmt.Sprintf("%s %s ?", col, pred.Op), []any{param}, nil

	case queryir.Prefix:
		col, err := column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		if pred.Prefix == "" {
			return "1 = 1", nil, nil
		}
		// Prefix match is bytewise on every column type.
		if !blob(pred.Field) {
			col = "CAST(" + col + " AS BLOB)"
		}
		return fmt.Sprintf("substr(%s, 1, ?) = ?", col), []any{len(pred.Prefix), []byte(pred.Prefix)}, nil

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, child := range pred.Predicates {
			sql, childParams, err := c.compilePredicate(source, child)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, childParams...)
		}
		if len(parts) == 1 {
			return parts[0], params, nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil

	case queryir.Never:
		return "1 = 0", nil, nil

	case queryir.ColumnEquals:
		return "", nil, fmt.Errorf("column comparison outside a join condition")
	}
	return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
}

// valueParam converts a literal to a SQL parameter. Strings compared with
// BLOB columns are bound as bytes so SQLite compares like with like.
func valueParam(v ir.Value, blob bool) (any, error) {
	switch val := v.(type) {
	case ir.String:
		if blob {
			return []byte(val), nil
		}
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case nil:
		return nil, fmt.Errorf("missing value")
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
