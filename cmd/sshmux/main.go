// Package main is the entrypoint for the sshmux CLI.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	err := rootCmd.Execute()
	shutdown()
	if err != nil {
		var exitErr *remoteExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// remoteExitError carries a remote command's non-zero exit status through
// cobra so the process can mirror it.
type remoteExitError struct {
	code int
}

func (e *remoteExitError) Error() string {
	return fmt.Sprintf("remote command exited %d", e.code)
}
