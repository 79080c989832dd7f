package sandbox

import (
	"context"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/mendbox/runtime"
)

// guiUnavailableNote is appended to stderr when a GUI toolkit failed to
// load inside the container. The original error text is kept intact.
const guiUnavailableNote = "\n\nNOTE: This application requires GUI support" +
	" which is not available in this sandbox environment."

// serverSignatures mark projects that start a long-running server and would
// otherwise block until the full timeout
var serverSignatures = []string{
	"from flask import",
	"Flask(",
	"uvicorn.run(",
}

// ExecutorConfig carries the execution timeouts
type ExecutorConfig struct {
	Timeout       time.Duration
	ServerTimeout time.Duration
}

// Executor runs the entry point, or the test suite when one is present,
// inside the session container
type Executor struct {
	logger *zap.Logger
	rt     runtime.Runtime
	config ExecutorConfig
}

// NewExecutor creates an Executor backed by the given runtime
func NewExecutor(logger *zap.Logger, rt runtime.Runtime, config ExecutorConfig) *Executor {
	return &Executor{logger: logger, rt: rt, config: config}
}

// Execute runs the file set inside the container. Non-zero exits and
// timeouts come back as results, never as errors.
func (e *Executor) Execute(ctx context.Context, name string, files FileSet, entryPoint string) (runtime.ExecResult, error) {
	cmd := commandFor(files, entryPoint)

	timeout := e.config.Timeout
	if hasServerSignature(files) && e.config.ServerTimeout < timeout {
		e.logger.Info("server framework detected, clamping timeout",
			zap.String("container", name),
			zap.Duration("timeout", e.config.ServerTimeout))
		timeout = e.config.ServerTimeout
	}

	e.logger.Info("executing",
		zap.String("container", name),
		zap.Strings("cmd", cmd),
		zap.Duration("timeout", timeout))

	res, err := e.rt.Exec(ctx, name, cmd, timeout)
	if err != nil {
		return runtime.ExecResult{}, err
	}

	if res.ExitCode != 0 && guiFailure(res.Stderr) {
		res.Stderr += guiUnavailableNote
	}
	return res, nil
}

// commandFor picks the test runner over the entry point when test files are
// present
func commandFor(files FileSet, entryPoint string) []string {
	if tests := testFiles(files); len(tests) > 0 {
		cmd := append([]string{"pytest"}, tests...)
		return append(cmd, "--tb=short")
	}
	return []string{"python", entryPoint}
}

// testFiles returns the paths whose basename follows pytest naming
// conventions, in lexical order
func testFiles(files FileSet) []string {
	var tests []string
	for _, p := range files.PythonFiles() {
		base := path.Base(p)
		if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") {
			tests = append(tests, p)
		}
	}
	return tests
}

func hasServerSignature(files FileSet) bool {
	for _, p := range files.PythonFiles() {
		content := files[p]
		for _, sig := range serverSignatures {
			if strings.Contains(content, sig) {
				return true
			}
		}
	}
	return false
}

func guiFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "tkinter") || strings.Contains(lower, "libtk")
}
