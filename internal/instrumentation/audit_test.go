package instrumentation

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthEvent_Complete(t *testing.T) {
	e := NewAuthEvent("tokens_issued").
		WithUser("user-123").
		WithGrantType("authorization_code").
		Complete(true, nil)

	assert.True(t, e.Success)
	assert.Equal(t, StatusSuccess, e.Status())
	assert.Empty(t, e.Error)

	failed := NewAuthEvent("link_completed").Complete(false, errors.New("exchange failed"))
	assert.Equal(t, StatusError, failed.Status())
	assert.Equal(t, "exchange failed", failed.Error)
}

func TestAuditLogger_PIIRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true, IncludePII: false})
	al.LogAuthEvent(NewAuthEvent("link_completed").
		WithUser("user-123").
		WithEmail("jane@example.com").
		Complete(true, nil))

	out := buf.String()
	assert.NotContains(t, out, "jane@example.com")
	assert.Contains(t, out, "user_domain=example.com")
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true, IncludePII: true})
	al.LogAuthEvent(NewAuthEvent("link_completed").
		WithEmail("jane@example.com").
		Complete(true, nil))

	assert.Contains(t, buf.String(), "email=jane@example.com")
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: false})
	al.LogAuthEvent(NewAuthEvent("tokens_issued").Complete(true, nil))

	assert.Empty(t, buf.String())
}
