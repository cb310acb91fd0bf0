package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrGrantType = "grant_type"
	attrReason    = "reason"
	attrResult    = "result"
	attrTool      = "tool"
	attrOperation = "operation"
	attrService   = "service"
)

// Metrics provides methods for recording observability metrics. The zero
// value is a no-op recorder, used when instrumentation is disabled.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Session token metrics
	tokensIssuedTotal     metric.Int64Counter
	tokenValidationsTotal metric.Int64Counter

	// OAuth flow metrics
	oauthStatesIssuedTotal   metric.Int64Counter
	oauthStatesConsumedTotal metric.Int64Counter
	googleTokenRefreshTotal  metric.Int64Counter

	// MCP tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.tokensIssuedTotal, err = meter.Int64Counter(
		"session_tokens_issued_total",
		metric.WithDescription("Total number of session token pairs issued"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session_tokens_issued_total counter: %w", err)
	}

	m.tokenValidationsTotal, err = meter.Int64Counter(
		"session_token_validations_total",
		metric.WithDescription("Total number of session token validations"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session_token_validations_total counter: %w", err)
	}

	m.oauthStatesIssuedTotal, err = meter.Int64Counter(
		"oauth_states_issued_total",
		metric.WithDescription("Total number of OAuth states issued for account linking"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_states_issued_total counter: %w", err)
	}

	m.oauthStatesConsumedTotal, err = meter.Int64Counter(
		"oauth_states_consumed_total",
		metric.WithDescription("Total number of OAuth state consumption attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_states_consumed_total counter: %w", err)
	}

	m.googleTokenRefreshTotal, err = meter.Int64Counter(
		"google_token_refresh_total",
		metric.WithDescription("Total number of Google access token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_token_refresh_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTokensIssued records a session token pair being minted.
// grantType is the OAuth grant that produced the pair.
func (m *Metrics) RecordTokensIssued(ctx context.Context, grantType, status string) {
	if m.tokensIssuedTotal == nil {
		return // Instrumentation not initialized
	}

	m.tokensIssuedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrGrantType, grantType),
		attribute.String(attrStatus, status),
	))
}

// RecordTokenValidation records a session token validation outcome.
// reason is "valid" for successful validations, otherwise the failure
// reason (e.g. "expired", "invalid_signature").
func (m *Metrics) RecordTokenValidation(ctx context.Context, reason string) {
	if m.tokenValidationsTotal == nil {
		return // Instrumentation not initialized
	}

	m.tokenValidationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrReason, reason),
	))
}

// RecordOAuthStateIssued records a new single-use OAuth state being issued.
func (m *Metrics) RecordOAuthStateIssued(ctx context.Context) {
	if m.oauthStatesIssuedTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthStatesIssuedTotal.Add(ctx, 1)
}

// RecordOAuthStateConsumed records a state consumption attempt.
// Result should be one of: "success", "invalid"
func (m *Metrics) RecordOAuthStateConsumed(ctx context.Context, result string) {
	if m.oauthStatesConsumedTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthStatesConsumedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordGoogleTokenRefresh records a Google access token refresh attempt.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordGoogleTokenRefresh(ctx context.Context, result string) {
	if m.googleTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.googleTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records a Google API operation with service,
// operation, status, and duration.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
