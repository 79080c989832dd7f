package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Healer   HealerConfig   `mapstructure:"healer"`
	PatchGen PatchGenConfig `mapstructure:"patchgen"`
	Store    StoreConfig    `mapstructure:"store"`
}

// ServerConfig holds MCP server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// SandboxConfig holds sandbox execution configuration
type SandboxConfig struct {
	Backend            string `mapstructure:"backend"`
	Image              string `mapstructure:"image"`
	Workspace          string `mapstructure:"workspace"`
	TimeoutSec         int    `mapstructure:"timeout_sec"`
	InstallTimeoutSec  int    `mapstructure:"install_timeout_sec"`
	ServerTimeoutSec   int    `mapstructure:"server_timeout_sec"`
	ProbeTimeoutSec    int    `mapstructure:"probe_timeout_sec"`
	MemoryMB           int    `mapstructure:"memory_mb"`
	NetworkEnabled     bool   `mapstructure:"network_enabled"`
	GUIPreinstall      bool   `mapstructure:"gui_preinstall"`
	EnableLocalBackend bool   `mapstructure:"enable_local_backend"`
}

// HealerConfig holds repair loop configuration
type HealerConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// PatchGenConfig holds patch generator (LLM) configuration
type PatchGenConfig struct {
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	BaseURL    string `mapstructure:"base_url"`
	APIKeyEnv  string `mapstructure:"api_key_env"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// StoreConfig holds session store configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)

	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("sandbox.backend", "docker")
	viper.SetDefault("sandbox.image", "python:3.11-slim")
	viper.SetDefault("sandbox.workspace", "/sandbox")
	viper.SetDefault("sandbox.timeout_sec", 120)
	viper.SetDefault("sandbox.install_timeout_sec", 300)
	viper.SetDefault("sandbox.server_timeout_sec", 60)
	viper.SetDefault("sandbox.probe_timeout_sec", 10)
	viper.SetDefault("sandbox.memory_mb", 512)
	viper.SetDefault("sandbox.network_enabled", true)
	viper.SetDefault("sandbox.gui_preinstall", false)
	viper.SetDefault("sandbox.enable_local_backend", false)

	viper.SetDefault("healer.max_attempts", 3)

	viper.SetDefault("patchgen.model", "claude-sonnet-4-20250514")
	viper.SetDefault("patchgen.max_tokens", 4096)
	viper.SetDefault("patchgen.base_url", "https://api.anthropic.com")
	viper.SetDefault("patchgen.api_key_env", "ANTHROPIC_API_KEY")
	viper.SetDefault("patchgen.timeout_sec", 120)

	viper.SetDefault("store.path", "mendbox.db")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Logging.Mode != "development" && c.Logging.Mode != "production" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'development' or 'production'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.InstallTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.install_timeout_sec must be positive, got: %d", c.Sandbox.InstallTimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if !strings.HasPrefix(c.Sandbox.Workspace, "/") {
		return fmt.Errorf("sandbox.workspace must be an absolute path, got: %s", c.Sandbox.Workspace)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"api":    true,
		"local":  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Healer.MaxAttempts <= 0 {
		return fmt.Errorf("healer.max_attempts must be positive, got: %d", c.Healer.MaxAttempts)
	}

	if c.PatchGen.Model == "" {
		return fmt.Errorf("patchgen.model must not be empty")
	}

	if c.PatchGen.MaxTokens <= 0 {
		return fmt.Errorf("patchgen.max_tokens must be positive, got: %d", c.PatchGen.MaxTokens)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// GetInstallTimeout returns the dependency install timeout as a duration
func (c *Config) GetInstallTimeout() time.Duration {
	return time.Duration(c.Sandbox.InstallTimeoutSec) * time.Second
}
