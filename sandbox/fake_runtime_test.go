package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/isdmx/mendbox/runtime"
)

// fakeRuntime scripts Exec responses keyed by the joined command and
// records every interaction
type fakeRuntime struct {
	responses map[string]runtime.ExecResult
	ensureErr error
	execErr   error

	ensured   []string
	copied    []string
	destroyed []string
	execs     [][]string
	timeouts  []time.Duration
	lastTree  map[string]string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{responses: map[string]runtime.ExecResult{}}
}

func (f *fakeRuntime) respond(cmd string, res runtime.ExecResult) {
	f.responses[cmd] = res
}

func (f *fakeRuntime) EnsureRunning(_ context.Context, name string) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured = append(f.ensured, name)
	return nil
}

func (f *fakeRuntime) CopyTree(_ context.Context, _, localDir string) error {
	f.copied = append(f.copied, localDir)
	f.lastTree = map[string]string{}
	return filepath.Walk(localDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f.lastTree[filepath.ToSlash(rel)] = string(content)
		return nil
	})
}

func (f *fakeRuntime) Exec(_ context.Context, _ string, cmd []string, timeout time.Duration) (runtime.ExecResult, error) {
	if f.execErr != nil {
		return runtime.ExecResult{}, f.execErr
	}
	f.execs = append(f.execs, cmd)
	f.timeouts = append(f.timeouts, timeout)
	if res, ok := f.responses[strings.Join(cmd, " ")]; ok {
		return res, nil
	}
	return runtime.ExecResult{}, nil
}

func (f *fakeRuntime) Destroy(_ context.Context, name string) error {
	f.destroyed = append(f.destroyed, name)
	return nil
}

// ranCommand reports whether a command starting with prefix was executed
func (f *fakeRuntime) ranCommand(prefix string) bool {
	for _, cmd := range f.execs {
		if strings.HasPrefix(strings.Join(cmd, " "), prefix) {
			return true
		}
	}
	return false
}
