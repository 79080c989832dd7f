package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ExitCodeTimeout is the reserved exit code reported when a command is
// cut off by its timeout. Process-produced codes are passed through as-is.
const ExitCodeTimeout = 124

// TimeoutStderr is the stderr text of a synthetic timeout result.
const TimeoutStderr = "Execution timed out"

// ErrUnavailable indicates the container runtime cannot be reached at all
// (daemon down, binary missing). It is the only error class Exec returns;
// non-zero exit codes are reported in ExecResult instead.
var ErrUnavailable = errors.New("container runtime unavailable")

// ExecResult represents the outcome of a command run inside a container
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// TimedOut reports whether the result is a synthetic timeout
func (r ExecResult) TimedOut() bool {
	return r.ExitCode == ExitCodeTimeout
}

// Runtime is the container lifecycle and exec surface the sandbox builds on.
// Implementations keep one long-lived container per name; names are chosen
// by the caller and never reused across unrelated sessions.
type Runtime interface {
	// EnsureRunning is idempotent: a running container with this name is a
	// no-op, otherwise a detached long-lived container is created with the
	// workspace directory provisioned inside it.
	EnsureRunning(ctx context.Context, name string) error

	// CopyTree copies the contents of localDir into the container workspace,
	// overwriting existing entries but never deleting anything else.
	CopyTree(ctx context.Context, name, localDir string) error

	// Exec runs cmd inside the container under the given timeout. Non-zero
	// exits come back as data; a timeout yields the ExitCodeTimeout sentinel.
	Exec(ctx context.Context, name string, cmd []string, timeout time.Duration) (ExecResult, error)

	// Destroy force-removes the container. Safe on an already-removed name.
	Destroy(ctx context.Context, name string) error
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}
