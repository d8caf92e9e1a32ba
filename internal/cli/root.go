// Package cli implements the stressline command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Exit codes.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitThresholdsFailed = 99
)

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "stressline",
		Short:   "Ramp virtual users against an HTTP endpoint and judge the result",
		Version: version,
		Long: `stressline runs a k6-style stress scenario: it ramps virtual users through
a list of stages, each user repeatedly sending a GET request, checking the
status and pausing, and fails the run when a threshold is crossed.

Without a scenario file it runs the built-in stress test against APP_URL:
30s to 300 VUs, 3m to 500 VUs, 10s back to 0, with p(95)<2000 on
http_req_duration and rate<0.05 on http_req_failed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newOptionsCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the command line with the process arguments and returns the
// exit code.
func Execute() int {
	return ExecuteArgs(os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteArgs runs the command line with args and returns the exit code.
func ExecuteArgs(args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return ExitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.code != ExitThresholdsFailed {
			fmt.Fprintln(stderr, "Error:", exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintln(stderr, "Error:", err)
	return ExitFailure
}
