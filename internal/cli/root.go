// Package cli wires the cobra command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// exitCode is set by commands that complete but need a non-zero
// process status (threshold violations).
var exitCode int

// RootCmd is the base command.
var RootCmd = &cobra.Command{
	Use:     "surge",
	Short:   "A rate-controlled HTTP load tester",
	Version: version,
	Long: `Surge issues HTTP requests against a target endpoint at a fixed
queries-per-second rate, collects per-request latency and outcome data,
and reports aggregate statistics with threshold checks.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the command tree and returns the process exit code:
// 0 on a clean run, 1 on threshold violations, 2 on configuration or
// usage errors.
func Execute() int {
	exitCode = 0
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return exitCode
}

func init() {
	RootCmd.AddCommand(runCmd)
}
