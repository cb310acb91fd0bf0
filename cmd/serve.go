package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shcallaway/gmail-mcp-server/internal/auth"
	"github.com/shcallaway/gmail-mcp-server/internal/config"
	"github.com/shcallaway/gmail-mcp-server/internal/google"
	"github.com/shcallaway/gmail-mcp-server/internal/instrumentation"
	"github.com/shcallaway/gmail-mcp-server/internal/logging"
	"github.com/shcallaway/gmail-mcp-server/internal/mcp"
	"github.com/shcallaway/gmail-mcp-server/internal/server"
	"github.com/shcallaway/gmail-mcp-server/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		debugMode  bool
		trustProxy bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Gmail MCP server",
		Long: `Start the HTTP server: the OAuth token broker, Google account linking,
OAuth discovery metadata, health probes, and the MCP transport on /mcp.

Configuration is read from the environment (a .env file is honored):

  Required:
    BASE_URL              Public base URL of this server
    GOOGLE_CLIENT_ID      Google OAuth client ID
    GOOGLE_CLIENT_SECRET  Google OAuth client secret
    OAUTH_REDIRECT_URI    Callback URL registered with Google
    TOKEN_ENCRYPTION_KEY  Key for refresh tokens at rest (>= 32 chars)
    JWT_SECRET            Session token signing secret (>= 32 chars)

  Optional:
    PORT                  Listen port (default: 3000)
    DB_URL                SQLite database path (default: ./data/gmail-mcp.db)
    ALLOWED_ORIGINS       Comma-separated CORS allowlist
    METRICS_ENABLED       Serve Prometheus metrics (default: true)
    METRICS_ADDR          Metrics listen address (default: :9090)

Run 'gmail-mcp-server generate-secrets' to create the two secret values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(debugMode, trustProxy)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&trustProxy, "trust-proxy", false, "Trust X-Forwarded-For and X-Real-IP headers (only enable behind a trusted proxy)")

	return cmd
}

func runServe(debugMode, trustProxy bool) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("closing credential store failed", logging.Err(err))
		}
	}()

	codec := auth.NewCodec(cfg.JWTSecret, cfg.BaseURL)
	broker := auth.NewBroker(codec, cfg.BaseURL, logger)
	broker.SetMetrics(provider.Metrics())

	linkerCfg := google.LinkerConfig{
		ClientID:      cfg.GoogleClientID,
		ClientSecret:  cfg.GoogleClientSecret,
		RedirectURI:   cfg.OAuthRedirectURI,
		EncryptionKey: cfg.TokenEncryptionKey,
	}
	linker := google.NewLinker(linkerCfg, st, logger)
	tokens := google.NewStoreTokenProviderWithMetrics(linkerCfg, st, provider.Metrics(), logger)

	mcpHandler, err := mcp.NewHandler(mcp.Options{
		Version: version,
		Tokens:  tokens,
		Metrics: provider.Metrics(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP handler: %w", err)
	}

	srv := server.New(server.Options{
		Config:     cfg,
		Store:      st,
		Broker:     broker,
		Linker:     linker,
		Metrics:    provider.Metrics(),
		Audit:      instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging),
		MCPHandler: mcpHandler,
		Logger:     logger,
		TrustProxy: trustProxy,
	})

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	logger.Info("gmail-mcp-server started",
		slog.String("addr", cfg.HTTPAddr()),
		slog.String("base_url", cfg.BaseURL),
		slog.String("version", version))

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("http server stopped with error: %w", err)
		}
		return nil
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer stopCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(stopCtx); err != nil {
			logger.Error("metrics server shutdown failed", logging.Err(err))
		}
	}
	if err := srv.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("error shutting down http server: %w", err)
	}

	logger.Info("http server gracefully stopped")
	return nil
}
