package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// APIRuntime implements Runtime against the Docker Engine API. It behaves
// like the CLI backend but talks to the daemon directly, which also makes
// the copy path a straight tar upload instead of a cp subprocess.
type APIRuntime struct {
	logger *zap.Logger
	config *Config
	client *client.Client
}

// NewAPIRuntime creates a runtime backed by the Docker Engine API
func NewAPIRuntime(logger *zap.Logger, config *Config) (*APIRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: create docker client: %v", ErrUnavailable, err)
	}

	return &APIRuntime{
		logger: logger,
		config: config,
		client: cli,
	}, nil
}

// NewAPIRuntimeWithClient creates an API runtime with an existing client.
// Useful for testing or when sharing a client across runtimes.
func NewAPIRuntimeWithClient(logger *zap.Logger, config *Config, cli *client.Client) (*APIRuntime, error) {
	if cli == nil {
		return nil, fmt.Errorf("docker client cannot be nil")
	}

	return &APIRuntime{
		logger: logger,
		config: config,
		client: cli,
	}, nil
}

// EnsureRunning starts the named container if needed. An existing stopped
// container with the same name is removed and recreated, matching the CLI
// backend's rm -f + run behavior.
func (a *APIRuntime) EnsureRunning(ctx context.Context, name string) error {
	inspect, err := a.client.ContainerInspect(ctx, name)
	if err == nil {
		if inspect.State != nil && inspect.State.Running {
			a.logger.Debug("container already running", zap.String("container", name))
			return nil
		}
		_ = a.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	}

	if err := a.ensureImage(ctx); err != nil {
		return err
	}

	containerCfg := &container.Config{
		Image:      a.config.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: a.config.Workspace,
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory: int64(a.config.MemoryMB) * 1024 * 1024,
		},
	}
	if !a.config.NetworkEnabled {
		hostCfg.NetworkMode = "none"
	}

	resp, err := a.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return fmt.Errorf("%w: create container: %v", ErrUnavailable, err)
	}

	if err := a.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = a.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("%w: start container: %v", ErrUnavailable, err)
	}

	a.logger.Info("container started",
		zap.String("container", name),
		zap.String("image", a.config.Image),
		zap.String("backend", "api"))
	return nil
}

// ensureImage pulls the configured image if it is not present locally
func (a *APIRuntime) ensureImage(ctx context.Context) error {
	_, _, err := a.client.ImageInspectWithRaw(ctx, a.config.Image)
	if err == nil {
		return nil
	}

	a.logger.Info("pulling image", zap.String("image", a.config.Image))
	reader, err := a.client.ImagePull(ctx, a.config.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: pull image %s: %v", ErrUnavailable, a.config.Image, err)
	}
	defer reader.Close()

	// Drain the pull progress stream so the pull completes
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("read image pull response: %w", err)
	}

	return nil
}

// CopyTree packs localDir into a tar archive and uploads it to the workspace
func (a *APIRuntime) CopyTree(ctx context.Context, name, localDir string) error {
	tarData, err := TarDir(localDir)
	if err != nil {
		return fmt.Errorf("pack local dir: %w", err)
	}

	err = a.client.CopyToContainer(ctx, name, a.config.Workspace, bytes.NewReader(tarData), container.CopyToContainerOptions{})
	if err != nil {
		return fmt.Errorf("copy to container: %w", err)
	}
	return nil
}

// Exec runs cmd inside the container via the exec API
func (a *APIRuntime) Exec(ctx context.Context, name string, cmd []string, timeout time.Duration) (ExecResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execResp, err := a.client.ContainerExecCreate(execCtx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   a.config.Workspace,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: exec create: %v", ErrUnavailable, err)
	}

	attachResp, err := a.client.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: exec attach: %v", ErrUnavailable, err)
	}
	defer attachResp.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, attachResp.Reader)
		done <- copyErr
	}()

	select {
	case <-execCtx.Done():
		// The exec keeps running in the container; Destroy reaps it later
		a.logger.Warn("command timed out",
			zap.String("container", name),
			zap.Duration("timeout", timeout))
		return ExecResult{Stdout: "", Stderr: TimeoutStderr, ExitCode: ExitCodeTimeout}, nil
	case copyErr := <-done:
		if copyErr != nil {
			return ExecResult{}, fmt.Errorf("read exec output: %w", copyErr)
		}
	}

	inspectResp, err := a.client.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: exec inspect: %v", ErrUnavailable, err)
	}

	return ExecResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: inspectResp.ExitCode,
	}, nil
}

// Destroy force-removes the container, ignoring errors
func (a *APIRuntime) Destroy(ctx context.Context, name string) error {
	if err := a.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		a.logger.Debug("container removal ignored",
			zap.String("container", name),
			zap.Error(err))
	}
	return nil
}

// Ping verifies the daemon is reachable
func (a *APIRuntime) Ping(ctx context.Context) error {
	if _, err := a.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}
