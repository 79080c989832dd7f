// Package main is the entry point for the Mendbox MCP server.
//
// The Mendbox server implements a Model Context Protocol (MCP) server that
// runs multi-file Python projects in isolated containers and, on request,
// heals failing projects by feeding their errors to an LLM and re-running
// the patched files until they exit cleanly or the attempt budget is spent.
// Healing sessions are persisted to a local SQLite database so exhausted
// sessions can be resumed later with a fresh budget.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration. The server supports both stdio and HTTP transports.
package main
