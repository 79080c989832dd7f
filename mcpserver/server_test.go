package mcpserver

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/mendbox/config"
	"github.com/isdmx/mendbox/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Transport: "stdio",
			HTTPPort:  8080,
		},
		Logging: config.LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Sandbox: config.SandboxConfig{
			Backend:           "docker",
			Image:             "python:3.11-slim",
			Workspace:         "/sandbox",
			TimeoutSec:        30,
			InstallTimeoutSec: 60,
			ServerTimeoutSec:  20,
			ProbeTimeoutSec:   5,
			MemoryMB:          512,
		},
		Healer: config.HealerConfig{
			MaxAttempts: 3,
		},
		PatchGen: config.PatchGenConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Store: config.StoreConfig{
			Path: "unused",
		},
	}
}

func newTestServer(t *testing.T) (*MCPServer, *fakeRuntime, *fakeGenerator) {
	t.Helper()

	rt := newFakeRuntime()
	gen := &fakeGenerator{}

	st, err := store.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		st.Close()
	})

	srv, err := New(testConfig(), zaptest.NewLogger(t), rt, gen, st)
	require.NoError(t, err)
	return srv, rt, gen
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	rt := newFakeRuntime()
	gen := &fakeGenerator{}

	st, err := store.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer st.Close()

	srv, err := New(cfg, logger, rt, gen, st)
	require.NoError(t, err)
	require.NotNil(t, srv)
	assert.Equal(t, cfg, srv.config)
	assert.Equal(t, logger, srv.logger)
	assert.Equal(t, rt, srv.runtime)
	assert.Equal(t, gen, srv.generator)
	assert.Equal(t, st, srv.store)
	assert.NotNil(t, srv.mcpServer)
	assert.NotNil(t, srv.GetMCPServer())
}
