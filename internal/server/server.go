package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shcallaway/gmail-mcp-server/internal/auth"
	"github.com/shcallaway/gmail-mcp-server/internal/config"
	"github.com/shcallaway/gmail-mcp-server/internal/google"
	"github.com/shcallaway/gmail-mcp-server/internal/instrumentation"
	"github.com/shcallaway/gmail-mcp-server/internal/logging"
	"github.com/shcallaway/gmail-mcp-server/internal/store"
)

const (
	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultIdleTimeout is the keep-alive idle timeout.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// Server is the main HTTP server: the OAuth surface, discovery metadata,
// health endpoints, and the authenticated MCP transport.
type Server struct {
	cfg         *config.Config
	store       store.TokenStore
	broker      *auth.Broker
	linker      *google.Linker
	metrics     *instrumentation.Metrics
	audit       *instrumentation.AuditLogger
	health      *HealthChecker
	rateLimiter *RateLimiter
	mcpHandler  http.Handler
	logger      *slog.Logger

	httpServer *http.Server
}

// Options carries the dependencies for a Server.
type Options struct {
	Config     *config.Config
	Store      store.TokenStore
	Broker     *auth.Broker
	Linker     *google.Linker
	Metrics    *instrumentation.Metrics
	Audit      *instrumentation.AuditLogger
	MCPHandler http.Handler
	Logger     *slog.Logger

	// TrustProxy makes the rate limiter honor X-Forwarded-For and
	// X-Real-IP. Only enable behind a trusted proxy.
	TrustProxy bool
}

// New builds a Server from its dependencies. Metrics, Audit, and MCPHandler
// may be nil; the corresponding features are then disabled.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}

	s := &Server{
		cfg:         opts.Config,
		store:       opts.Store,
		broker:      opts.Broker,
		linker:      opts.Linker,
		metrics:     metrics,
		audit:       opts.Audit,
		rateLimiter: NewRateLimiter(10, 20, opts.TrustProxy),
		mcpHandler:  opts.MCPHandler,
		logger:      logging.WithComponent(logger, "server"),
	}
	s.health = NewHealthChecker(opts.Store, logger)
	return s
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// OAuth surface, rate limited per client IP.
	mux.Handle("/oauth/token", s.rateLimiter.Middleware(http.HandlerFunc(s.broker.HandleToken)))
	mux.Handle("/oauth/authorize", s.rateLimiter.Middleware(http.HandlerFunc(s.broker.HandleAuthorize)))
	mux.Handle("/oauth/start", s.rateLimiter.Middleware(s.broker.RequireAuthFunc(s.handleOAuthStart)))
	mux.Handle("/oauth/callback", s.rateLimiter.Middleware(http.HandlerFunc(s.handleOAuthCallback)))

	// Discovery metadata for MCP clients.
	mux.HandleFunc("/.well-known/oauth-protected-resource", s.handleProtectedResourceMetadata)
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleAuthorizationServerMetadata)

	s.health.RegisterHealthEndpoints(mux)

	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.broker.RequireAuth(s.mcpHandler))
	}

	var handler http.Handler = mux
	handler = s.metricsMiddleware(handler)
	if len(s.cfg.AllowedOrigins) > 0 {
		handler = corsMiddleware(handler, s.cfg.AllowedOrigins)
	}
	return handler
}

// Start runs the HTTP server until it is shut down. It blocks; run it in a
// goroutine for non-blocking operation.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	s.health.SetReady(true)
	s.logger.Info("starting http server", slog.String("addr", s.cfg.HTTPAddr()))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
