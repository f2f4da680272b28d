package querysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ordokr/LMS/internal/queryir"
)

// Querier runs a read-only query. *store.Store satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Result is a query result in column order.
// BLOB columns (keys, values) are returned as strings.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Run compiles q and executes it against db.
// A Never filter short-circuits without touching the database.
func (c *SQLCompiler) Run(ctx context.Context, db Querier, q queryir.Query) (*Result, error) {
	sqlText, params, err := c.Compile(q)
	if err != nil {
		return nil, err
	}
	if sel, ok := q.(queryir.Select); ok {
		if _, never := sel.Filter.(queryir.Never); never {
			return &Result{Columns: outputColumns(sel), Rows: [][]any{}}, nil
		}
	}
	return Execute(ctx, db, sqlText, params)
}

// Execute runs compiled SQL and scans every row.
func Execute(ctx context.Context, db Querier, sqlText string, params []any) (*Result, error) {
	rows, err := db.Query(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	res := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return res, nil
}

func outputColumns(sel queryir.Select) []string {
	fields := selectedFields(sel.From, sel.Bindings)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = outputName(sel.From, sel.Bindings, f, false)
	}
	return names
}
