// Command mailblocks runs the block-based email pipeline: an HTTP API for
// composing, previewing, scheduling, and cancelling deliveries, plus a
// standalone worker mode for processing the durable delivery queue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "mailblocks",
		Short:         "Block-based email compiler with durable deferred delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newPreviewCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
