// Package cmd implements the command-line interface for gmail-mcp-server.
//
// This package provides the following commands:
//   - serve: Start the HTTP server (OAuth broker, account linking, MCP transport)
//   - generate-secrets: Print fresh values for the secret environment variables
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
