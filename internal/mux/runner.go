package mux

import (
	"context"
	"os/exec"
)

// Runner abstracts invocation of the installed ssh client so tests can
// substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// ExitCode extracts the remote command's exit status from a Runner error.
// A nil error is exit 0; anything that is not an exec.ExitError reports -1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}
