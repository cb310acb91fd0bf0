package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shcallaway/gmail-mcp-server/internal/auth"
	"github.com/shcallaway/gmail-mcp-server/internal/config"
	"github.com/shcallaway/gmail-mcp-server/internal/google"
	"github.com/shcallaway/gmail-mcp-server/internal/store"
)

const testBaseURL = "https://mcp.example.com"

func newTestServer(t *testing.T) (*Server, store.TokenStore, *auth.Codec) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Port:               3000,
		BaseURL:            testBaseURL,
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		OAuthRedirectURI:   testBaseURL + "/oauth/callback",
		TokenEncryptionKey: strings.Repeat("k", 32),
		JWTSecret:          strings.Repeat("s", 32),
		AllowedOrigins:     []string{"https://app.example.com"},
	}

	codec := auth.NewCodec(cfg.JWTSecret, cfg.BaseURL)
	broker := auth.NewBroker(codec, cfg.BaseURL, nil)
	linker := google.NewLinker(google.LinkerConfig{
		ClientID:      cfg.GoogleClientID,
		ClientSecret:  cfg.GoogleClientSecret,
		RedirectURI:   cfg.OAuthRedirectURI,
		EncryptionKey: cfg.TokenEncryptionKey,
	}, st, nil)

	srv := New(Options{
		Config: cfg,
		Store:  st,
		Broker: broker,
		Linker: linker,
		MCPHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("mcp ok"))
		}),
	})
	return srv, st, codec
}

func TestHealthz_SweepsExpiredStates(t *testing.T) {
	srv, st, _ := newTestServer(t)
	handler := srv.Handler()

	require.NoError(t, st.SaveOAuthState(t.Context(), &store.OAuthState{
		State:        "stale",
		MCPUserID:    "user",
		ExpiresAt:    time.Now().Add(-time.Hour).UnixMilli(),
		Scopes:       "scope",
		CodeVerifier: "verifier",
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)

	removed, err := st.CleanupExpiredStates(t.Context())
	require.NoError(t, err)
	assert.Zero(t, removed, "probe should have already swept the ledger")
}

func TestReadyz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.health.SetReady(false)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDiscoveryDocuments(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var prm protectedResourceMetadata
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&prm))
	assert.Equal(t, testBaseURL, prm.Resource)
	assert.Equal(t, []string{testBaseURL}, prm.AuthorizationServers)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var asm authorizationServerMetadata
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&asm))
	assert.Equal(t, testBaseURL, asm.Issuer)
	assert.Equal(t, testBaseURL+"/oauth/token", asm.TokenEndpoint)
	assert.Contains(t, asm.GrantTypesSupported, "refresh_token")
	assert.Contains(t, asm.CodeChallengeMethodsSupported, "S256")
}

func TestOAuthStart_RequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/start", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestOAuthStart_ReturnsConsentURL(t *testing.T) {
	srv, _, codec := newTestServer(t)
	handler := srv.Handler()

	pair, err := codec.MintPair("user-123", "mcp:tools")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/oauth/start", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp startLinkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp.AuthURL, "accounts.google.com")
	assert.Contains(t, resp.AuthURL, "code_challenge")
}

func TestOAuthCallback_InvalidState(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/oauth/callback?state=bogus&code=whatever", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or has expired")
}

func TestOAuthCallback_GoogleError(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/oauth/callback?error=access_denied", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_denied")
}

func TestMCPEndpoint_RequiresAuth(t *testing.T) {
	srv, _, codec := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	pair, err := codec.MintPair("user-123", "mcp:tools")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mcp ok", rec.Body.String())
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/oauth/token", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Unknown origins get no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, false)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")

	// Other clients are unaffected.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "192.0.2.1", getClientIP(req, false))
	assert.Equal(t, "203.0.113.9", getClientIP(req, true))
}

func TestExtractIPFromAddr(t *testing.T) {
	assert.Equal(t, "192.0.2.1", extractIPFromAddr("192.0.2.1:1234"))
	assert.Equal(t, "::1", extractIPFromAddr("[::1]:1234"))
	assert.Equal(t, "2001:db8::7", extractIPFromAddr("[2001:db8::7]:443"))
	assert.Equal(t, "192.0.2.1", extractIPFromAddr("192.0.2.1"))
}

func TestRateLimiter_IPv6ClientsGetSeparateBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, false)

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "[2001:db8::1]:1234"
	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "[2001:db8::2]:1234"

	assert.True(t, rl.Allow(getClientIP(first, false)))
	assert.False(t, rl.Allow(getClientIP(first, false)), "burst exhausted")
	assert.True(t, rl.Allow(getClientIP(second, false)), "distinct client has its own bucket")
}
