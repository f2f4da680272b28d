package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ordokr/LMS/internal/chain"
	"github.com/ordokr/LMS/internal/ir"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	DB string
}

// VerifyResult reports a chain check. FirstBroken is -1 for a valid chain.
type VerifyResult struct {
	Valid       bool    `json:"valid"`
	FirstBroken int     `json:"first_broken"`
	Blocks      int     `json:"blocks"`
	Head        ir.Hash `json:"head"`
}

// RenderText implements textRenderer.
func (r VerifyResult) RenderText(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "✓ chain valid: %d blocks, head %s\n", r.Blocks, r.Head)
		return
	}
	fmt.Fprintf(w, "✗ chain broken at index %d of %d\n", r.FirstBroken, r.Blocks)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify [hash...]",
		Short: "Verify the hash chain",
		Long: `Without arguments, verify every block stored in the database: the first
block must follow genesis and each block must link to the one before it.

With arguments, verify that the given hex block hashes form a contiguous
run of the stored chain.

Exit codes:
  0 - chain valid
  1 - chain broken
  2 - command error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database")

	return cmd
}

func runVerify(opts *VerifyOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	hashes := make([]ir.Hash, len(args))
	for i, a := range args {
		h, err := ir.ParseHash(a)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("argument %d", i+1), err)
		}
		hashes[i] = h
	}

	s, err := opts.openSession(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	e := s.rt.Engine()
	result := VerifyResult{FirstBroken: -1, Head: e.Head().Hash}
	if len(hashes) == 0 {
		infos, err := e.Blocks(cmd.Context(), 0, 0)
		if err != nil {
			return WrapExitError(ExitCommandError, "read blocks", err)
		}
		blocks := make([]ir.Block, len(infos))
		for i, info := range infos {
			blocks[i] = info.Block
		}
		hashes = chain.Hashes(blocks)
		if len(blocks) > 0 && !blocks[0].PrevHash.IsZero() {
			result.Blocks = len(blocks)
			result.FirstBroken = 0
			return reportBroken(out, result)
		}
	}

	result.Blocks = len(hashes)
	result.Valid, result.FirstBroken = s.rt.CheckChain(chain.EncodeHashes(hashes), len(hashes))
	if !result.Valid {
		return reportBroken(out, result)
	}
	out.VerboseLog("verified %d hashes", len(hashes))
	return out.Success(result)
}

func reportBroken(out *OutputFormatter, result VerifyResult) error {
	msg := fmt.Sprintf("chain broken at index %d", result.FirstBroken)
	if err := out.Failure("CHAIN_BROKEN", msg, result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}
