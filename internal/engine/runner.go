package engine

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/pkg/errors"
)

// Runner runs a command to completion and captures its output. It exists so
// tests can substitute the external tool.
type Runner interface {
	// Run returns the captured streams and the process exit code. err is
	// non-nil when the process could not be started or did not exit normally.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}
	if ctx.Err() != nil {
		return stdout.String(), stderr.String(), -1, errors.Wrapf(ctx.Err(), "%s interrupted", name)
	}
	return stdout.String(), stderr.String(), -1, errors.Wrapf(err, "run %s", name)
}
