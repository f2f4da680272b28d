package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ordokr/LMS/internal/queryir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	DB      string
	Bound   []string // key=value
	Explain bool
}

// QueryOutput is the result of the query command.
type QueryOutput struct {
	AST      string   `json:"ast"`
	Warnings []string `json:"warnings,omitempty"`
	Columns  []string `json:"columns,omitempty"`
	Rows     [][]any  `json:"rows,omitempty"`
}

// RenderText implements textRenderer.
func (q QueryOutput) RenderText(w io.Writer) {
	for _, warn := range q.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if q.Columns == nil {
		fmt.Fprintln(w, q.AST)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(q.Columns, "\t"))
	for _, row := range q.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "(%d rows)\n", len(q.Rows))
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query>",
		Short: "Run a query against the stored state",
		Long: `Parse, optimize and run a query over the state, results and batches
tables.

Examples:
  lmssync query "from state where key prefix 'user/' select key, value"
  lmssync query "from results where outcome == 'conflict'"
  lmssync query "from state where key == bound.key" --bound key=user/1
  lmssync query --explain "from state where version > 1 and version > 3"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database")
	cmd.Flags().StringArrayVar(&opts.Bound, "bound", nil, "bound variable as name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "print the optimized query without running it")

	return cmd
}

func parseBound(pairs []string) (map[string]any, error) {
	bound := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("bound %q: want name=value", p)
		}
		if !strings.HasPrefix(name, "bound.") {
			name = "bound." + name
		}
		bound[name] = value
	}
	return bound, nil
}

func runQuery(opts *QueryOptions, text string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	bound, err := parseBound(opts.Bound)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --bound", err)
	}

	if opts.Explain {
		q, err := queryir.Parse(text)
		if err != nil {
			return WrapExitError(ExitFailure, "parse query", err)
		}
		data, err := queryir.Encode(queryir.Optimize(q))
		if err != nil {
			return WrapExitError(ExitFailure, "encode query", err)
		}
		return out.Success(QueryOutput{AST: string(data)})
	}

	s, err := opts.openSession(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.rt.RunQuery(cmd.Context(), text, bound)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	ast, err := queryir.Encode(res.Query)
	if err != nil {
		return WrapExitError(ExitFailure, "encode query", err)
	}
	return out.Success(QueryOutput{AST: string(ast), Warnings: res.Warnings, Columns: res.Columns, Rows: res.Rows})
}
