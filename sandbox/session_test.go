package sandbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/mendbox/config"
	"github.com/isdmx/mendbox/runtime"
)

func testConfig() *config.Config {
	return &config.Config{
		Sandbox: config.SandboxConfig{
			Backend:           "docker",
			Image:             "python:3.11-slim",
			Workspace:         "/sandbox",
			TimeoutSec:        120,
			InstallTimeoutSec: 300,
			ServerTimeoutSec:  60,
			ProbeTimeoutSec:   10,
			MemoryMB:          512,
		},
	}
}

func TestSessionRun(t *testing.T) {
	ctx := context.Background()

	t.Run("HappyPath", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.respond("python main.py", runtime.ExecResult{Stdout: "42\n"})
		s := NewSession(zaptest.NewLogger(t), rt, testConfig())
		files := FileSet{"main.py": "print(42)\n"}

		res, err := s.Run(ctx, files, "main.py")
		require.NoError(t, err)
		assert.Equal(t, "42\n", res.Stdout)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, []string{s.ID()}, rt.ensured)
		assert.Len(t, rt.copied, 1)
		assert.Equal(t, "print(42)\n", rt.lastTree["main.py"])
	})

	t.Run("MissingEntryPointFailsBeforeRuntime", func(t *testing.T) {
		rt := newFakeRuntime()
		s := NewSession(zaptest.NewLogger(t), rt, testConfig())

		_, err := s.Run(ctx, FileSet{"other.py": "print(1)\n"}, "main.py")
		assert.ErrorIs(t, err, ErrEntryPointMissing)
		assert.Empty(t, rt.ensured)
		assert.Empty(t, rt.copied)
		assert.Empty(t, rt.execs)
	})

	t.Run("InstallFailureSkipsExecution", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.respond("cat .requirements_hash", runtime.ExecResult{ExitCode: 1})
		rt.respond("pip install -r requirements.txt", runtime.ExecResult{
			Stderr:   "ERROR: Could not find a version that satisfies the requirement ghost",
			ExitCode: 1,
		})
		s := NewSession(zaptest.NewLogger(t), rt, testConfig())
		files := FileSet{"main.py": "print(1)\n", "requirements.txt": "ghost\n"}

		res, err := s.Run(ctx, files, "main.py")
		require.NoError(t, err)
		assert.Equal(t, 1, res.ExitCode)
		assert.Contains(t, res.Stderr, "Could not find a version")
		assert.False(t, rt.ranCommand("python main.py"))
	})

	t.Run("InferredManifestJoinsFileSet", func(t *testing.T) {
		rt := newFakeRuntime()
		s := NewSession(zaptest.NewLogger(t), rt, testConfig())
		files := FileSet{"main.py": "import flask\nprint(1)\n"}

		_, err := s.Run(ctx, files, "main.py")
		require.NoError(t, err)
		assert.Contains(t, files, "requirements.txt")
		assert.Contains(t, files["requirements.txt"], "flask\n")
		assert.Contains(t, rt.lastTree, "requirements.txt")
	})

	t.Run("RepeatedRunSkipsReinstall", func(t *testing.T) {
		rt := newFakeRuntime()
		s := NewSession(zaptest.NewLogger(t), rt, testConfig())
		files := FileSet{"main.py": "print(1)\n", "requirements.txt": "flask\n"}
		hash := hashContent("flask\n")

		_, err := s.Run(ctx, files, "main.py")
		require.NoError(t, err)
		require.True(t, rt.ranCommand("pip install -r requirements.txt"))

		// Second run: the session remembers the hash, so only the sentinel
		// import is probed before skipping the install
		rt.execs = nil
		rt.respond("cat .requirements_hash", runtime.ExecResult{Stdout: hash + "\n"})

		_, err = s.Run(ctx, files, "main.py")
		require.NoError(t, err)
		assert.False(t, rt.ranCommand("pip install"))
		assert.False(t, rt.ranCommand("cat .requirements_hash"))
		assert.True(t, rt.ranCommand("python -c import flask"))
	})

	t.Run("EnsureRunningErrorPropagates", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.ensureErr = fmt.Errorf("%w: cannot connect", runtime.ErrUnavailable)
		s := NewSession(zaptest.NewLogger(t), rt, testConfig())

		_, err := s.Run(ctx, FileSet{"main.py": ""}, "main.py")
		assert.ErrorIs(t, err, runtime.ErrUnavailable)
	})
}

func TestSessionIDs(t *testing.T) {
	t.Run("UniquePerInstantiation", func(t *testing.T) {
		rt := newFakeRuntime()
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			s := NewSession(zaptest.NewLogger(t), rt, testConfig())
			assert.False(t, seen[s.ID()], "duplicate session id %s", s.ID())
			seen[s.ID()] = true
		}
	})

	t.Run("NameShape", func(t *testing.T) {
		s := NewSession(zaptest.NewLogger(t), newFakeRuntime(), testConfig())
		assert.Regexp(t, `^mendbox-[0-9a-f]{8}$`, s.ID())
	})

	t.Run("PinnedID", func(t *testing.T) {
		s := NewSession(zaptest.NewLogger(t), newFakeRuntime(), testConfig(), WithID("mendbox-resumed1"))
		assert.Equal(t, "mendbox-resumed1", s.ID())
	})
}

func TestSessionDestroy(t *testing.T) {
	rt := newFakeRuntime()
	s := NewSession(zaptest.NewLogger(t), rt, testConfig())
	ctx := context.Background()

	require.NoError(t, s.Destroy(ctx))
	require.NoError(t, s.Destroy(ctx))
	assert.Equal(t, []string{s.ID(), s.ID()}, rt.destroyed)
}
