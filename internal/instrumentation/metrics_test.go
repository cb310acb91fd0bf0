package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Uninitialized metrics must be safe to record against; a disabled provider
// hands out a zero-value recorder.
func TestMetrics_ZeroValueIsNoOp(t *testing.T) {
	m := &Metrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
		m.RecordTokensIssued(ctx, "authorization_code", StatusSuccess)
		m.RecordTokenValidation(ctx, "valid")
		m.RecordOAuthStateIssued(ctx)
		m.RecordOAuthStateConsumed(ctx, ResultSuccess)
		m.RecordGoogleTokenRefresh(ctx, ResultFailure)
		m.RecordToolInvocation(ctx, "gmail_list_messages", StatusSuccess, time.Second)
		m.RecordGoogleAPIOperation(ctx, "gmail", "list", StatusSuccess, time.Second)
	})
}

func TestProvider_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	assert.NotNil(t, provider.Metrics())
	assert.Nil(t, provider.PrometheusHandler())
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestProvider_Prometheus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsExporter = ExporterPrometheus
	cfg.TracingExporter = ExporterNone

	ctx := context.Background()
	provider, err := NewProvider(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(ctx) }()

	assert.True(t, provider.Enabled())
	assert.NotNil(t, provider.Metrics())
	assert.NotNil(t, provider.PrometheusHandler())
	assert.NotNil(t, provider.Tracer("test"))

	// Recording against a live provider must not panic either.
	provider.Metrics().RecordTokensIssued(ctx, "refresh_token", StatusSuccess)
}
