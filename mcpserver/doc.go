// Package mcpserver provides the Model Context Protocol (MCP) server
// implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// sandboxed execution and self-healing workflow as tools. It uses the
// mark3labs/mcp-go library to handle the protocol details and provides four
// tools:
//
//   - run_project: execute a file set once and return stdout, stderr and
//     the exit code
//   - heal_project: run the repair loop until success or exhaustion,
//     persisting the session and every attempt
//   - resume_session: grant a stored, unfinished session a fresh attempt
//     budget and continue where it stopped
//   - list_sessions: enumerate stored sessions, newest first
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	srv, err := mcpserver.New(cfg, logger, rt, generator, st)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = srv.ServeStdio() // or srv.ServeHTTP()
package mcpserver
