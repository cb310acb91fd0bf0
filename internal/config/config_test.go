package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:               3000,
		BaseURL:            "https://mcp.example.com",
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		OAuthRedirectURI:   "https://mcp.example.com/oauth/callback",
		TokenEncryptionKey: strings.Repeat("k", 32),
		JWTSecret:          strings.Repeat("s", 32),
		DBPath:             ":memory:",
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing base URL",
			mutate:  func(c *Config) { c.BaseURL = "" },
			wantMsg: "BASE_URL is required",
		},
		{
			name:    "invalid base URL",
			mutate:  func(c *Config) { c.BaseURL = "not a url" },
			wantMsg: "not a valid URL",
		},
		{
			name:    "missing google client id",
			mutate:  func(c *Config) { c.GoogleClientID = "" },
			wantMsg: "GOOGLE_CLIENT_ID is required",
		},
		{
			name:    "short encryption key",
			mutate:  func(c *Config) { c.TokenEncryptionKey = "short" },
			wantMsg: "TOKEN_ENCRYPTION_KEY must be at least 32 characters",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.JWTSecret = "short" },
			wantMsg: "JWT_SECRET must be at least 32 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.BaseURL = ""
	cfg.JWTSecret = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BASE_URL is required")
	assert.Contains(t, err.Error(), "JWT_SECRET must be at least 32 characters")
}

func TestHTTPAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 8080
	assert.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("BASE_URL", "http://localhost:3000")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("OAUTH_REDIRECT_URI", "http://localhost:3000/oauth/callback")
	t.Setenv("TOKEN_ENCRYPTION_KEY", strings.Repeat("k", 32))
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("PORT", "4000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.BaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "./data/gmail-mcp.db", cfg.DBPath)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("BASE_URL", "http://localhost:3000")
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}
