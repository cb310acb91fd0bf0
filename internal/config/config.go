package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all process configuration for gmail-mcp-server.
// It is constructed once at startup and passed by reference into every
// component constructor; no component reads ambient global state.
type Config struct {
	// Port is the HTTP listen port for the main server.
	Port int

	// BaseURL is the public base address of this service. It is used as the
	// issuer for session tokens and advertised in discovery metadata.
	BaseURL string

	// GoogleClientID and GoogleClientSecret identify this service to
	// Google's OAuth endpoints.
	GoogleClientID     string
	GoogleClientSecret string

	// OAuthRedirectURI is the callback URL registered with Google.
	OAuthRedirectURI string

	// TokenEncryptionKey is the master key for encrypting refresh tokens at
	// rest. Minimum 32 characters. Never logged.
	TokenEncryptionKey string

	// JWTSecret signs session tokens. Minimum 32 characters. Never logged.
	JWTSecret string

	// DBPath is the SQLite database file path.
	DBPath string

	// AllowedOrigins lists origins permitted by the CORS policy. Empty means
	// CORS headers are not emitted.
	AllowedOrigins []string

	// MetricsEnabled controls the dedicated metrics server.
	MetricsEnabled bool

	// MetricsAddr is the listen address for the metrics server.
	MetricsAddr string
}

// Load builds a Config from environment variables, optionally seeded from a
// .env file in the working directory. Validation failures are joined into a
// single error so the operator sees every problem at once.
func Load() (*Config, error) {
	// A missing .env file is not an error; the environment may be set
	// directly (e.g. in a container).
	_ = godotenv.Load()

	cfg := &Config{
		Port:               3000,
		BaseURL:            os.Getenv("BASE_URL"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		OAuthRedirectURI:   os.Getenv("OAUTH_REDIRECT_URI"),
		TokenEncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		DBPath:             getEnvOrDefault("DB_URL", "./data/gmail-mcp.db"),
		AllowedOrigins:     parseCommaSeparatedList(os.Getenv("ALLOWED_ORIGINS")),
		MetricsEnabled:     getEnvBoolOrDefault("METRICS_ENABLED", true),
		MetricsAddr:        getEnvOrDefault("METRICS_ADDR", ":9090"),
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			return nil, fmt.Errorf("invalid PORT %q: must be a positive integer", portStr)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and well formed.
func (c *Config) Validate() error {
	var problems []string

	if c.BaseURL == "" {
		problems = append(problems, "BASE_URL is required")
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("BASE_URL %q is not a valid URL", c.BaseURL))
	}

	if c.GoogleClientID == "" {
		problems = append(problems, "GOOGLE_CLIENT_ID is required")
	}
	if c.GoogleClientSecret == "" {
		problems = append(problems, "GOOGLE_CLIENT_SECRET is required")
	}

	if c.OAuthRedirectURI == "" {
		problems = append(problems, "OAUTH_REDIRECT_URI is required")
	} else if u, err := url.Parse(c.OAuthRedirectURI); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("OAUTH_REDIRECT_URI %q is not a valid URL", c.OAuthRedirectURI))
	}

	if len(c.TokenEncryptionKey) < 32 {
		problems = append(problems, "TOKEN_ENCRYPTION_KEY must be at least 32 characters")
	}
	if len(c.JWTSecret) < 32 {
		problems = append(problems, "JWT_SECRET must be at least 32 characters")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  %s", strings.Join(problems, "\n  "))
	}

	return nil
}

// HTTPAddr returns the listen address for the main HTTP server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the boolean value of an environment variable or a default value.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
