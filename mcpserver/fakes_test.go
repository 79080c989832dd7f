package mcpserver

import (
	"context"
	"strings"
	"time"

	"github.com/isdmx/mendbox/runtime"
	"github.com/isdmx/mendbox/sandbox"
)

// fakeRuntime scripts Exec responses as per-command queues so repeated runs
// of the same command can change outcome, the way a repair loop sees it
type fakeRuntime struct {
	queues    map[string][]runtime.ExecResult
	ensureErr error

	ensured   []string
	destroyed []string
	execs     [][]string
	timeouts  []time.Duration
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{queues: map[string][]runtime.ExecResult{}}
}

// respond queues results for a command; the last one repeats forever
func (f *fakeRuntime) respond(cmd string, results ...runtime.ExecResult) {
	f.queues[cmd] = append(f.queues[cmd], results...)
}

func (f *fakeRuntime) EnsureRunning(_ context.Context, name string) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured = append(f.ensured, name)
	return nil
}

func (f *fakeRuntime) CopyTree(_ context.Context, _, _ string) error {
	return nil
}

func (f *fakeRuntime) Exec(_ context.Context, _ string, cmd []string, timeout time.Duration) (runtime.ExecResult, error) {
	f.execs = append(f.execs, cmd)
	f.timeouts = append(f.timeouts, timeout)

	key := strings.Join(cmd, " ")
	queue := f.queues[key]
	if len(queue) == 0 {
		return runtime.ExecResult{}, nil
	}
	res := queue[0]
	if len(queue) > 1 {
		f.queues[key] = queue[1:]
	}
	return res, nil
}

func (f *fakeRuntime) Destroy(_ context.Context, name string) error {
	f.destroyed = append(f.destroyed, name)
	return nil
}

// fakeGenerator hands out scripted patches in order, then empty ones
type fakeGenerator struct {
	updates []map[string]string
	err     error

	stderrs []string
}

func (f *fakeGenerator) GeneratePatch(_ context.Context, _ sandbox.FileSet, stderr string) (map[string]string, error) {
	f.stderrs = append(f.stderrs, stderr)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.updates) == 0 {
		return map[string]string{}, nil
	}
	next := f.updates[0]
	f.updates = f.updates[1:]
	return next, nil
}
