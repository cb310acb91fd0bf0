// Package server wires the HTTP surface of gmail-mcp-server: the OAuth
// authorize/token endpoints, account-linking start and callback routes,
// OAuth discovery documents, Kubernetes health probes, and the
// authenticated MCP transport. Prometheus metrics are served from a
// dedicated port so operational data stays off the public listener.
package server
