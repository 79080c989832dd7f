package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// LocalRuntime implements Runtime directly on the host (WARNING: this is
// not secure and should only be used for development). Each session name
// maps to a directory under the OS temp dir that stands in for the
// container workspace.
type LocalRuntime struct {
	logger *zap.Logger
	config *Config
	root   string
}

// NewLocalRuntime creates a host-based runtime rooted in the OS temp dir
func NewLocalRuntime(logger *zap.Logger, config *Config) *LocalRuntime {
	return &LocalRuntime{
		logger: logger,
		config: config,
		root:   filepath.Join(os.TempDir(), "mendbox-local"),
	}
}

func (l *LocalRuntime) workspace(name string) string {
	return filepath.Join(l.root, name)
}

// EnsureRunning provisions the session's workspace directory
func (l *LocalRuntime) EnsureRunning(_ context.Context, name string) error {
	if err := os.MkdirAll(l.workspace(name), 0o755); err != nil {
		return fmt.Errorf("%w: provision workspace: %v", ErrUnavailable, err)
	}
	return nil
}

// CopyTree copies localDir's contents into the session workspace
func (l *LocalRuntime) CopyTree(_ context.Context, name, localDir string) error {
	ws := l.workspace(name)
	err := filepath.Walk(localDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		target := filepath.Join(ws, relPath)
		if fi.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return fmt.Errorf("copy to workspace: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Exec runs cmd on the host with the session workspace as working directory
func (l *LocalRuntime) Exec(ctx context.Context, name string, cmd []string, timeout time.Duration) (ExecResult, error) {
	if len(cmd) == 0 {
		return ExecResult{}, fmt.Errorf("no command provided")
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := exec.CommandContext(ctxWithTimeout, cmd[0], cmd[1:]...) //nolint:gosec // Dev-only backend runs caller-provided commands
	command.Dir = l.workspace(name)

	var stdoutBuf, stderrBuf bytes.Buffer
	command.Stdout = &stdoutBuf
	command.Stderr = &stderrBuf

	err := command.Run()

	if ctxWithTimeout.Err() == context.DeadlineExceeded {
		l.logger.Warn("command timed out",
			zap.String("session", name),
			zap.Duration("timeout", timeout))
		return ExecResult{Stdout: "", Stderr: TimeoutStderr, ExitCode: ExitCodeTimeout}, nil
	}

	exitCode := 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("%w: exec: %v", ErrUnavailable, err)
		}
	}

	return ExecResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
	}, nil
}

// Destroy removes the session workspace, ignoring errors
func (l *LocalRuntime) Destroy(_ context.Context, name string) error {
	if err := os.RemoveAll(l.workspace(name)); err != nil {
		l.logger.Debug("workspace removal ignored",
			zap.String("session", name),
			zap.Error(err))
	}
	return nil
}
