package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ordokr/LMS/internal/queryir"
	"github.com/ordokr/LMS/internal/querysql"
)

// ErrNoStore is returned by RunQuery when the runtime has no database.
var ErrNoStore = errors.New("queries need a database")

// QueryError reports a query that parses but does not validate.
type QueryError struct {
	Errors []string
}

func (e *QueryError) Error() string {
	return "invalid query: " + strings.Join(e.Errors, "; ")
}

// QueryResult is an executed query with its optimized AST.
type QueryResult struct {
	Query    queryir.Query
	Warnings []string
	*querysql.Result
}

// RunQuery parses, validates, optimizes and executes query text against
// the durable store. bound supplies values for bound.<name> variables.
func (r *Runtime) RunQuery(ctx context.Context, text string, bound map[string]any) (*QueryResult, error) {
	q, err := queryir.Parse(text)
	if err != nil {
		return nil, err
	}
	res := queryir.Validate(q)
	if !res.OK() {
		return nil, &QueryError{Errors: res.Errors}
	}
	q = queryir.Optimize(q)

	release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if r.store == nil {
		return nil, ErrNoStore
	}

	c := querysql.NewSQLCompiler()
	for name, v := range bound {
		c.BoundValues[name] = v
	}
	rows, err := c.Run(ctx, r.store, q)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	return &QueryResult{Query: q, Warnings: res.Warnings, Result: rows}, nil
}
