package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	commands map[string]struct {
		stdout   string
		stderr   string
		exitCode int
		err      error
	}
	calls []string
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (string, string, int, error) {
	key := strings.Join(args, " ")
	m.calls = append(m.calls, key)
	if result, exists := m.commands[key]; exists {
		return result.stdout, result.stderr, result.exitCode, result.err
	}
	return "", "", 0, nil
}

// blockingCommandRunner blocks until the context is done, simulating a
// command that outlives its deadline
type blockingCommandRunner struct{}

func (blockingCommandRunner) RunCommand(ctx context.Context, _ []string) (string, string, int, error) {
	<-ctx.Done()
	return "", "", 0, ctx.Err()
}

func testRuntimeConfig() *Config {
	return &Config{
		Image:          "python:3.11-slim",
		Workspace:      "/sandbox",
		MemoryMB:       512,
		NetworkEnabled: false,
	}
}

func newMockRunner() *MockCommandRunner {
	return &MockCommandRunner{
		commands: map[string]struct {
			stdout   string
			stderr   string
			exitCode int
			err      error
		}{},
	}
}

func TestCLIRuntimeEnsureRunning(t *testing.T) {
	t.Run("AlreadyRunning", func(t *testing.T) {
		runner := newMockRunner()
		runner.commands["docker ps -q -f name=mendbox-test"] = struct {
			stdout   string
			stderr   string
			exitCode int
			err      error
		}{stdout: "abc123\n"}

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		err := rt.EnsureRunning(context.Background(), "mendbox-test")
		require.NoError(t, err)
		assert.Len(t, runner.calls, 1)
	})

	t.Run("CreatesContainer", func(t *testing.T) {
		runner := newMockRunner()

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		err := rt.EnsureRunning(context.Background(), "mendbox-test")
		require.NoError(t, err)

		assert.Contains(t, runner.calls, "docker ps -q -f name=mendbox-test")
		assert.Contains(t, runner.calls, "docker rm -f mendbox-test")
		assert.Contains(t, runner.calls,
			"docker run -dit --name mendbox-test -w /sandbox --memory 512m --network none python:3.11-slim sleep infinity")
		assert.Contains(t, runner.calls, "docker exec mendbox-test mkdir -p /sandbox")
	})

	t.Run("NetworkEnabledOmitsNoneFlag", func(t *testing.T) {
		runner := newMockRunner()
		cfg := testRuntimeConfig()
		cfg.NetworkEnabled = true

		rt := NewCLIRuntime(zaptest.NewLogger(t), cfg, "docker", WithCommandRunner(runner))
		err := rt.EnsureRunning(context.Background(), "mendbox-test")
		require.NoError(t, err)

		assert.Contains(t, runner.calls,
			"docker run -dit --name mendbox-test -w /sandbox --memory 512m python:3.11-slim sleep infinity")
	})

	t.Run("DaemonUnreachable", func(t *testing.T) {
		runner := newMockRunner()
		runner.commands["docker ps -q -f name=mendbox-test"] = struct {
			stdout   string
			stderr   string
			exitCode int
			err      error
		}{err: errors.New("exec: \"docker\": executable file not found in $PATH")}

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		err := rt.EnsureRunning(context.Background(), "mendbox-test")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("RunFailureSurfacesStderr", func(t *testing.T) {
		runner := newMockRunner()
		runner.commands["docker run -dit --name mendbox-test -w /sandbox --memory 512m --network none python:3.11-slim sleep infinity"] = struct {
			stdout   string
			stderr   string
			exitCode int
			err      error
		}{stderr: "Cannot connect to the Docker daemon", exitCode: 1}

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		err := rt.EnsureRunning(context.Background(), "mendbox-test")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), "Cannot connect to the Docker daemon")
	})

	t.Run("PodmanBinary", func(t *testing.T) {
		runner := newMockRunner()
		runner.commands["podman ps -q -f name=mendbox-test"] = struct {
			stdout   string
			stderr   string
			exitCode int
			err      error
		}{stdout: "deadbeef\n"}

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "podman", WithCommandRunner(runner))
		err := rt.EnsureRunning(context.Background(), "mendbox-test")
		require.NoError(t, err)
	})
}

func TestCLIRuntimeCopyTree(t *testing.T) {
	t.Run("BuildsCpArgs", func(t *testing.T) {
		runner := newMockRunner()

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		err := rt.CopyTree(context.Background(), "mendbox-test", "/tmp/stage")
		require.NoError(t, err)
		assert.Equal(t, []string{"docker cp /tmp/stage/. mendbox-test:/sandbox"}, runner.calls)
	})

	t.Run("NonZeroExitIsError", func(t *testing.T) {
		runner := newMockRunner()
		runner.commands["docker cp /tmp/stage/. mendbox-test:/sandbox"] = struct {
			stdout   string
			stderr   string
			exitCode int
			err      error
		}{stderr: "no such container", exitCode: 1}

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		err := rt.CopyTree(context.Background(), "mendbox-test", "/tmp/stage")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such container")
	})
}

func TestCLIRuntimeExec(t *testing.T) {
	t.Run("PassesThroughExitCode", func(t *testing.T) {
		runner := newMockRunner()
		runner.commands["docker exec mendbox-test python main.py"] = struct {
			stdout   string
			stderr   string
			exitCode int
			err      error
		}{stdout: "", stderr: "ZeroDivisionError: division by zero", exitCode: 1}

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		res, err := rt.Exec(context.Background(), "mendbox-test", []string{"python", "main.py"}, 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, res.ExitCode)
		assert.Contains(t, res.Stderr, "ZeroDivisionError")
		assert.False(t, res.TimedOut())
	})

	t.Run("TimeoutYieldsSentinel", func(t *testing.T) {
		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(blockingCommandRunner{}))
		res, err := rt.Exec(context.Background(), "mendbox-test", []string{"python", "main.py"}, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, ExitCodeTimeout, res.ExitCode)
		assert.Equal(t, TimeoutStderr, res.Stderr)
		assert.Empty(t, res.Stdout)
		assert.True(t, res.TimedOut())
	})

	t.Run("InfrastructureFailure", func(t *testing.T) {
		runner := newMockRunner()
		runner.commands["docker exec mendbox-test python main.py"] = struct {
			stdout   string
			stderr   string
			exitCode int
			err      error
		}{err: errors.New("exec: \"docker\": executable file not found in $PATH")}

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		_, err := rt.Exec(context.Background(), "mendbox-test", []string{"python", "main.py"}, time.Second)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestCLIRuntimeDestroy(t *testing.T) {
	t.Run("RemovesContainer", func(t *testing.T) {
		runner := newMockRunner()

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		err := rt.Destroy(context.Background(), "mendbox-test")
		require.NoError(t, err)
		assert.Equal(t, []string{"docker rm -f mendbox-test"}, runner.calls)
	})

	t.Run("IgnoresErrors", func(t *testing.T) {
		runner := newMockRunner()
		runner.commands["docker rm -f mendbox-test"] = struct {
			stdout   string
			stderr   string
			exitCode int
			err      error
		}{stderr: "No such container", exitCode: 1, err: errors.New("already removed")}

		rt := NewCLIRuntime(zaptest.NewLogger(t), testRuntimeConfig(), "docker", WithCommandRunner(runner))
		err := rt.Destroy(context.Background(), "mendbox-test")
		require.NoError(t, err)
	})
}
