// Package instrumentation provides OpenTelemetry-based observability for
// gmail-mcp-server: metrics for the HTTP surface, token issuance, OAuth
// state consumption, and Google token refreshes, plus optional tracing and
// an audit log for authentication events.
//
// Metrics are exported through Prometheus by default; OTLP and stdout
// exporters are available for other collection setups. All recorders are
// nil-safe so a disabled provider costs nothing at call sites.
package instrumentation
