package runtime

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/mendbox/config"
)

// New creates an appropriate runtime based on the configuration
func New(logger *zap.Logger, cfg *config.Config) (Runtime, error) {
	runtimeConfig := Config{
		Image:          cfg.Sandbox.Image,
		Workspace:      cfg.Sandbox.Workspace,
		MemoryMB:       cfg.Sandbox.MemoryMB,
		NetworkEnabled: cfg.Sandbox.NetworkEnabled,
	}

	switch cfg.Sandbox.Backend {
	case "docker":
		return NewCLIRuntime(logger, &runtimeConfig, "docker"), nil
	case "podman":
		return NewCLIRuntime(logger, &runtimeConfig, "podman"), nil
	case "api":
		rt, err := NewAPIRuntime(logger, &runtimeConfig)
		if err != nil {
			return nil, err
		}
		return rt, nil
	case "local":
		logger.Warn("local backend runs commands directly on the host; development use only")
		return NewLocalRuntime(logger, &runtimeConfig), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
