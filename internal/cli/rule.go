package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ordokr/LMS/internal/compiler"
	"github.com/ordokr/LMS/internal/ir"
)

// RuleResult is the output of the rule command.
type RuleResult struct {
	Rules  []ir.SyncRule              `json:"rules"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
	Cycles []compiler.CycleWarning    `json:"cycles,omitempty"`
}

// RenderText implements textRenderer.
func (r RuleResult) RenderText(w io.Writer) {
	for _, rule := range r.Rules {
		fmt.Fprintf(w, "%s: when %s %q", rule.ID, rule.When.Kind, rule.When.Prefix)
		if rule.When.Outcome != "" {
			fmt.Fprintf(w, " (%s)", rule.When.Outcome)
		}
		fmt.Fprintf(w, " -> %s %s\n", rule.Then.Kind, rule.Then.Key)
		if rule.Where != nil {
			fmt.Fprintf(w, "  where %s\n", rule.Where.Query)
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "✗ %s\n", e.Error())
	}
	for _, c := range r.Cycles {
		fmt.Fprintf(w, "⚠ %s: %s\n", c.Message, strings.Join(c.Path, " -> "))
	}
}

// NewRuleCommand creates the rule command.
func NewRuleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule <file-or-dir>",
		Short: "Compile and validate sync rules",
		Long: `Compile the CUE rule definitions in a file or directory, validate them
and report rules that may trigger each other in a cycle.

Exit codes:
  0 - all rules valid (cycle warnings do not fail)
  1 - validation errors
  2 - compile errors or unreadable input`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRule(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runRule(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	rules, errs := LoadRules(path)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		if err := out.Error("COMPILE_ERROR", fmt.Sprintf("%d file(s) failed to compile", len(errs)), msgs); err != nil {
			return err
		}
		return WrapExitError(ExitCommandError, "compile rules", errs[0])
	}

	result := RuleResult{
		Rules:  rules,
		Errors: compiler.Validate(rules),
		Cycles: compiler.AnalyzeCycles(rules),
	}
	out.VerboseLog("compiled %d rules", len(rules))

	if len(result.Errors) > 0 {
		msg := fmt.Sprintf("%d validation error(s)", len(result.Errors))
		if err := out.Failure("VALIDATION_FAILED", msg, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return out.Success(result)
}
