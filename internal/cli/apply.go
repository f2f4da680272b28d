package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/server"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	DB string
}

// BatchFile is the document read by apply. JSON is accepted as well since
// it is valid YAML.
type BatchFile struct {
	Batches []struct {
		Ops []bridge.TextOp `yaml:"ops"`
	} `yaml:"batches"`
}

// ApplyResult lists the committed batches in order.
type ApplyResult struct {
	Batches []server.BatchResponse `json:"batches"`
}

// RenderText implements textRenderer.
func (r ApplyResult) RenderText(w io.Writer) {
	for _, b := range r.Batches {
		fmt.Fprintf(w, "seq %d  %s  %s\n", b.Block.Index, b.BatchID, b.Block.Hash)
		for _, row := range b.Results {
			if row.NewVersion > 0 {
				fmt.Fprintf(w, "  %-10s %s v%d\n", row.Outcome, row.Key, row.NewVersion)
			} else {
				fmt.Fprintf(w, "  %-10s %s\n", row.Outcome, row.Key)
			}
		}
	}
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <batch-file>",
		Short: "Apply batches from a YAML or JSON file",
		Long: `Apply every batch in the file, in order, as its own atomic batch.

Conflicts and missing keys are reported as outcomes. A rejected batch
(empty, too large, malformed operation) stops the run; batches before it
stay committed.

Batch file:
  batches:
    - ops:
        - {kind: put, key: user/1, value: ada}
        - {kind: cas, key: user/2, expected: bob, value: bea}

Exit codes:
  0 - all batches committed
  1 - a batch was rejected
  2 - command error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database")

	return cmd
}

// LoadBatchFile reads and decodes a batch file. Unknown fields are rejected.
func LoadBatchFile(path string) (*BatchFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bf BatchFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&bf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(bf.Batches) == 0 {
		return nil, fmt.Errorf("%s: no batches", path)
	}
	return &bf, nil
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	bf, err := LoadBatchFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load batch file", err)
	}

	s, err := opts.openSession(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	result := ApplyResult{Batches: []server.BatchResponse{}}
	for i, b := range bf.Batches {
		ops, err := bridge.ParseTextOps(b.Ops)
		if err == nil {
			var c bridge.Committed
			c, err = s.rt.Apply(cmd.Context(), ops)
			if err == nil {
				result.Batches = append(result.Batches, server.NewBatchResponse(c))
				out.VerboseLog("batch %d committed as seq %d", i, c.Block.Index)
				continue
			}
		}
		msg := fmt.Sprintf("batch %d rejected: %v", i, err)
		if ferr := out.Failure(string(ir.CodeOf(err)), msg, result); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, msg)
	}
	return out.Success(result)
}
