package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds the runtime parameters shared by all backends
type Config struct {
	Image          string
	Workspace      string
	MemoryMB       int
	NetworkEnabled bool
}

// CLIRuntime implements Runtime by shelling out to a container CLI
type CLIRuntime struct {
	logger    *zap.Logger
	config    *Config
	binary    string // "docker" or "podman"
	cmdRunner CommandRunner
}

// CLIRuntimeOption defines a functional option for CLIRuntime
type CLIRuntimeOption func(*CLIRuntime)

// WithCommandRunner sets the CommandRunner for CLIRuntime
func WithCommandRunner(cmdRunner CommandRunner) CLIRuntimeOption {
	return func(c *CLIRuntime) {
		c.cmdRunner = cmdRunner
	}
}

// NewCLIRuntime creates a CLI-backed runtime for the given binary
func NewCLIRuntime(logger *zap.Logger, config *Config, binary string, opts ...CLIRuntimeOption) *CLIRuntime {
	rt := &CLIRuntime{
		logger:    logger,
		config:    config,
		binary:    binary,
		cmdRunner: &RealCommandRunner{}, // Default implementation
	}

	for _, opt := range opts {
		opt(rt)
	}

	return rt
}

// EnsureRunning starts the named container if it is not already running.
// A stale stopped container with the same name is removed first.
func (c *CLIRuntime) EnsureRunning(ctx context.Context, name string) error {
	stdout, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.binary, "ps", "-q", "-f", "name=" + name})
	if err != nil {
		return fmt.Errorf("%w: %s ps: %v", ErrUnavailable, c.binary, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: %s ps exited %d: %s", ErrUnavailable, c.binary, exitCode, strings.TrimSpace(stderr))
	}
	if strings.TrimSpace(stdout) != "" {
		c.logger.Debug("container already running", zap.String("container", name))
		return nil
	}

	// Remove a stopped leftover so the name is free
	_, _, _, _ = c.cmdRunner.RunCommand(ctx, []string{c.binary, "rm", "-f", name})

	runArgs := []string{
		c.binary, "run", "-dit",
		"--name", name,
		"-w", c.config.Workspace,
		"--memory", fmt.Sprintf("%dm", c.config.MemoryMB),
	}
	if !c.config.NetworkEnabled {
		runArgs = append(runArgs, "--network", "none")
	}
	runArgs = append(runArgs, c.config.Image, "sleep", "infinity")

	_, stderr, exitCode, err = c.cmdRunner.RunCommand(ctx, runArgs)
	if err != nil {
		return fmt.Errorf("%w: %s run: %v", ErrUnavailable, c.binary, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: %s run exited %d: %s", ErrUnavailable, c.binary, exitCode, strings.TrimSpace(stderr))
	}

	_, stderr, exitCode, err = c.cmdRunner.RunCommand(ctx, []string{c.binary, "exec", name, "mkdir", "-p", c.config.Workspace})
	if err != nil {
		return fmt.Errorf("%w: provision workspace: %v", ErrUnavailable, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("provision workspace exited %d: %s", exitCode, strings.TrimSpace(stderr))
	}

	c.logger.Info("container started",
		zap.String("container", name),
		zap.String("image", c.config.Image),
		zap.String("backend", c.binary))
	return nil
}

// CopyTree copies localDir's contents into the container workspace
func (c *CLIRuntime) CopyTree(ctx context.Context, name, localDir string) error {
	args := []string{c.binary, "cp", localDir + "/.", name + ":" + c.config.Workspace}
	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, args)
	if err != nil {
		return fmt.Errorf("%w: %s cp: %v", ErrUnavailable, c.binary, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("copy to container exited %d: %s", exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// Exec runs cmd inside the container. The exit code of the in-container
// process is passed through; hitting the timeout yields the sentinel result.
func (c *CLIRuntime) Exec(ctx context.Context, name string, cmd []string, timeout time.Duration) (ExecResult, error) {
	args := append([]string{c.binary, "exec", name}, cmd...)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := c.cmdRunner.RunCommand(ctxWithTimeout, args)

	// The deadline kills the local client; the container keeps the process.
	// Destroy at session teardown is what reaps it.
	if ctxWithTimeout.Err() == context.DeadlineExceeded {
		c.logger.Warn("command timed out",
			zap.String("container", name),
			zap.Duration("timeout", timeout))
		return ExecResult{Stdout: "", Stderr: TimeoutStderr, ExitCode: ExitCodeTimeout}, nil
	}

	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: %s exec: %v", ErrUnavailable, c.binary, err)
	}

	return ExecResult{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
}

// Destroy force-removes the container, ignoring errors so it is safe to
// call on a name that was never created or is already gone
func (c *CLIRuntime) Destroy(ctx context.Context, name string) error {
	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.binary, "rm", "-f", name})
	if err != nil || exitCode != 0 {
		c.logger.Debug("container removal ignored",
			zap.String("container", name),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", strings.TrimSpace(stderr)),
			zap.Error(err))
	}
	return nil
}
