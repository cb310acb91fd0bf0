// Package logging provides structured logging utilities for gmail-mcp-server.
//
// This package centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog package.
//
// # Security Considerations
//
//   - User emails are hashed to prevent PII leakage while allowing correlation
//   - Tokens and secrets are never logged directly; use SanitizeToken
package logging
