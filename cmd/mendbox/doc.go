// Package main is the Mendbox command line interface.
//
// It offers two verbs over the same machinery the MCP server exposes:
//
//	mendbox run  --dir ./project [--entry main.py] [--timeout 60]
//	mendbox heal --dir ./project [--attempts 5] [--out ./fixed]
//
// run executes a project directory once inside a disposable container and
// prints a YAML (or JSON) report of the outcome. heal drives the repair
// loop, optionally writing the healed files to a directory.
//
// Configuration is read the same way the server reads it: a config.yaml in
// the working directory or ./config, with every key defaulted. The Anthropic
// API key comes from the environment, never from the file.
package main
