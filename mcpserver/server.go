package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/mendbox/config"
	"github.com/isdmx/mendbox/healer"
	"github.com/isdmx/mendbox/runtime"
	"github.com/isdmx/mendbox/store"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	runtime   runtime.Runtime
	generator healer.PatchGenerator
	store     *store.Store
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, rt runtime.Runtime, generator healer.PatchGenerator, st *store.Store) (*MCPServer, error) {
	s := &MCPServer{
		config:    cfg,
		logger:    logger,
		runtime:   rt,
		generator: generator,
		store:     st,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.String("sandbox.backend", s.config.Sandbox.Backend),
		zap.String("sandbox.image", s.config.Sandbox.Image),
		zap.Int("sandbox.timeout_sec", s.config.Sandbox.TimeoutSec),
		zap.Int("sandbox.install_timeout_sec", s.config.Sandbox.InstallTimeoutSec),
		zap.Int("sandbox.memory_mb", s.config.Sandbox.MemoryMB),
		zap.Bool("sandbox.network_enabled", s.config.Sandbox.NetworkEnabled),
		zap.Bool("sandbox.gui_preinstall", s.config.Sandbox.GUIPreinstall),
		zap.Int("healer.max_attempts", s.config.Healer.MaxAttempts),
		zap.String("patchgen.model", s.config.PatchGen.Model),
		zap.String("store.path", s.config.Store.Path),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("mendbox", "A self-healing sandboxed Python project runner")

	// Register the tools
	s.registerRunProjectTool()
	s.registerHealProjectTool()
	s.registerResumeSessionTool()
	s.registerListSessionsTool()

	return s, nil
}

// registerRunProjectTool registers the run_project tool
func (s *MCPServer) registerRunProjectTool() {
	tool := mcp.Tool{
		Name:        "run_project",
		Description: "Run a multi-file Python project once in a sandboxed container, installing its dependencies first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"files": map[string]any{
					"type":                 "object",
					"description":          "Project files keyed by relative path",
					"additionalProperties": map[string]any{"type": "string"},
				},
				"entry_point": map[string]any{
					"type":        "string",
					"description": "File to execute (auto-detected when omitted)",
				},
				"timeout_sec": map[string]any{
					"type":        "integer",
					"description": "Execution timeout in seconds (defaults to server configuration)",
				},
			},
			Required: []string{"files"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunProject)
}

// registerHealProjectTool registers the heal_project tool
func (s *MCPServer) registerHealProjectTool() {
	tool := mcp.Tool{
		Name:        "heal_project",
		Description: "Run a Python project and repeatedly apply LLM-generated fixes until it exits cleanly or the attempt budget is spent",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"files": map[string]any{
					"type":                 "object",
					"description":          "Project files keyed by relative path",
					"additionalProperties": map[string]any{"type": "string"},
				},
				"entry_point": map[string]any{
					"type":        "string",
					"description": "File to execute (auto-detected when omitted)",
				},
				"max_attempts": map[string]any{
					"type":        "integer",
					"description": "Attempt budget for the repair loop (defaults to server configuration)",
				},
			},
			Required: []string{"files"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleHealProject)
}

// registerResumeSessionTool registers the resume_session tool
func (s *MCPServer) registerResumeSessionTool() {
	tool := mcp.Tool{
		Name:        "resume_session",
		Description: "Continue a stored healing session that ran out of attempts, granting it a fresh budget",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Identifier returned by heal_project",
				},
				"extra_attempts": map[string]any{
					"type":        "integer",
					"description": "Additional attempts to grant (defaults to server configuration)",
				},
			},
			Required: []string{"session_id"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleResumeSession)
}

// registerListSessionsTool registers the list_sessions tool
func (s *MCPServer) registerListSessionsTool() {
	tool := mcp.Tool{
		Name:        "list_sessions",
		Description: "List stored healing sessions, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of sessions to return (default 20)",
				},
			},
		},
	}

	s.mcpServer.AddTool(tool, s.handleListSessions)
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
