package cmd

import (
	"errors"
	"fmt"
	"os"
)

var errUsage = errors.New("usage")

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}
	return 0
}
