// Command lmssync runs the batched state-sync engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ordokr/LMS/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
