package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// AuthEvent captures one authentication or account-linking action for the
// audit trail: token issuance, link start/completion, and unlinking.
//
// The Email field contains PII. Whether it appears in logs is controlled by
// the AuditLogger's IncludePII setting; by default only the email domain is
// logged.
type AuthEvent struct {
	// Event names the action (e.g. "tokens_issued", "link_completed").
	Event string

	// MCPUserID is the broker-side identity involved.
	MCPUserID string

	// Email is the linked Google account, when known.
	Email string

	// GrantType is set for token endpoint events.
	GrantType string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
}

// NewAuthEvent creates an AuthEvent with timing started.
// Call Complete when the action finishes.
func NewAuthEvent(event string) *AuthEvent {
	return &AuthEvent{
		Event:     event,
		StartTime: time.Now(),
	}
}

// WithUser sets the broker-side user identity.
func (e *AuthEvent) WithUser(mcpUserID string) *AuthEvent {
	e.MCPUserID = mcpUserID
	return e
}

// WithEmail sets the linked Google account email.
func (e *AuthEvent) WithEmail(email string) *AuthEvent {
	e.Email = email
	return e
}

// WithGrantType sets the OAuth grant type.
func (e *AuthEvent) WithGrantType(grantType string) *AuthEvent {
	e.GrantType = grantType
	return e
}

// WithSpanContext extracts trace context from the current span.
func (e *AuthEvent) WithSpanContext(ctx context.Context) *AuthEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		e.TraceID = span.SpanContext().TraceID().String()
	}
	return e
}

// Complete marks the event as finished and records its outcome.
func (e *AuthEvent) Complete(success bool, err error) *AuthEvent {
	e.Duration = time.Since(e.StartTime)
	e.Success = success
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Status returns "success" or "error" based on the Success field.
func (e *AuthEvent) Status() string {
	if e.Success {
		return StatusSuccess
	}
	return StatusError
}

// logAttrs returns slog attributes for the event. When includePII is false
// the email is reduced to its domain.
func (e *AuthEvent) logAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("event", e.Event),
		slog.Duration("duration", e.Duration),
		slog.Bool("success", e.Success),
	}

	if e.MCPUserID != "" {
		attrs = append(attrs, slog.String("mcp_user_id", e.MCPUserID))
	}
	if e.Email != "" {
		if includePII {
			attrs = append(attrs, slog.String("email", e.Email))
		} else {
			attrs = append(attrs, slog.String("user_domain", ExtractUserDomain(e.Email)))
		}
	}
	if e.GrantType != "" {
		attrs = append(attrs, slog.String("grant_type", e.GrantType))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}

	return attrs
}

// AuditLogger provides structured audit logging for authentication events.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogAuthEvent writes an audit record for the event.
func (al *AuditLogger) LogAuthEvent(e *AuthEvent) {
	if !al.enabled {
		return
	}

	attrs := e.logAttrs(al.includePII)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if e.Success {
		al.logger.Info("auth_event", args...)
	} else {
		al.logger.Warn("auth_event_failed", args...)
	}
}
