package mcp

import (
	"fmt"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/shcallaway/gmail-mcp-server/internal/google"
	"github.com/shcallaway/gmail-mcp-server/internal/instrumentation"
	"github.com/shcallaway/gmail-mcp-server/internal/logging"
)

const serverName = "gmail-mcp-server"

// Options configures the MCP handler.
type Options struct {
	// Version is reported to MCP clients during initialization.
	Version string

	// Tokens provides Google access tokens for authenticated users.
	Tokens google.TokenProvider

	// Metrics records tool invocations. Optional; a nil value disables
	// recording.
	Metrics *instrumentation.Metrics

	// Logger for tool diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewHandler builds the streamable HTTP MCP handler with all Gmail tools
// registered.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = &instrumentation.Metrics{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mcpSrv := mcpserver.NewMCPServer(serverName, opts.Version,
		mcpserver.WithToolCapabilities(true),
	)

	ts := &toolset{
		tokens:  opts.Tokens,
		metrics: opts.Metrics,
		logger:  logging.WithComponent(logger, "mcp"),
	}
	ts.register(mcpSrv)

	return mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	), nil
}
