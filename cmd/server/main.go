package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/mendbox/config"
	"github.com/isdmx/mendbox/healer"
	"github.com/isdmx/mendbox/llm/anthropic"
	"github.com/isdmx/mendbox/logger"
	"github.com/isdmx/mendbox/mcpserver"
	"github.com/isdmx/mendbox/patch"
	"github.com/isdmx/mendbox/runtime"
	"github.com/isdmx/mendbox/store"
)

// newStore opens the session database and closes it on shutdown
func newStore(lc fx.Lifecycle, cfg *config.Config) (*store.Store, error) {
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return st.Close()
		},
	})
	return st, nil
}

// newPatchGenerator builds the LLM-backed patch generator. The API key is
// read from the environment variable named in the configuration, never from
// the configuration file itself.
func newPatchGenerator(cfg *config.Config, log *zap.Logger) (healer.PatchGenerator, error) {
	apiKey := os.Getenv(cfg.PatchGen.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.PatchGen.APIKeyEnv)
	}

	client := anthropic.New(apiKey, cfg.PatchGen.Model,
		anthropic.WithBaseURL(cfg.PatchGen.BaseURL),
		anthropic.WithMaxTokens(cfg.PatchGen.MaxTokens),
		anthropic.WithTimeout(time.Duration(cfg.PatchGen.TimeoutSec)*time.Second),
	)
	return patch.NewGenerator(log, client), nil
}

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Container runtime based on config
			runtime.New,

			// Session store
			newStore,

			// LLM-backed patch generator
			newPatchGenerator,

			// MCP Server
			mcpserver.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
