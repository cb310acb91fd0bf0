// Package mcp exposes the Model Context Protocol surface of the server:
// a streamable HTTP handler with Gmail tools that operate on the caller's
// linked Google account. The handler is mounted behind the session token
// middleware, so tool handlers can rely on an authenticated user ID being
// present in the request context.
package mcp
