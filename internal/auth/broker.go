package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/shcallaway/gmail-mcp-server/internal/instrumentation"
	"github.com/shcallaway/gmail-mcp-server/internal/logging"
)

// DefaultScope is granted when a token request names no scope.
const DefaultScope = "mcp:tools"

// mcpUserIDLength is the length of a generated MCP user ID: 16 random bytes
// hex encoded. Authorization codes of exactly this length are reused as the
// user ID so a client can round-trip an identity through the code flow.
const mcpUserIDLength = 32

// Broker implements the MCP-facing OAuth 2.0 surface: the authorize and
// token endpoints plus the bearer auth middleware for protected routes.
type Broker struct {
	codec    *Codec
	resource string
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// NewBroker returns a broker minting tokens with codec. resource is the
// public base URL advertised in WWW-Authenticate challenges.
func NewBroker(codec *Codec, resource string, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		codec:    codec,
		resource: resource,
		metrics:  &instrumentation.Metrics{},
		logger:   logging.WithComponent(logger, "auth"),
	}
}

// SetMetrics attaches a metrics recorder for token issuance and validation.
func (b *Broker) SetMetrics(m *instrumentation.Metrics) {
	if m != nil {
		b.metrics = m
	}
}

// GenerateUserID returns a fresh MCP user ID: 16 random bytes hex encoded.
func GenerateUserID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating user id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HandleToken implements the POST /oauth/token endpoint for the
// authorization_code and refresh_token grants.
func (b *Broker) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		b.writeError(w, NewOAuthError("invalid_request", "Method not allowed", http.StatusMethodNotAllowed))
		return
	}
	if err := r.ParseForm(); err != nil {
		b.writeError(w, ErrInvalidRequest("Malformed request body"))
		return
	}

	grantType := r.FormValue("grant_type")
	logger := logging.WithOperation(b.logger, "token").With(logging.GrantType(grantType))

	switch grantType {
	case "authorization_code":
		b.handleAuthorizationCodeGrant(w, r, logger)
	case "refresh_token":
		b.handleRefreshTokenGrant(w, r, logger)
	default:
		b.writeError(w, ErrUnsupportedGrantType(fmt.Sprintf("Grant type %q is not supported", grantType)))
	}
}

func (b *Broker) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	code := r.FormValue("code")
	if code == "" {
		b.writeError(w, ErrInvalidRequest("Missing required parameter: code"))
		return
	}

	// A code of exactly the user ID length is treated as the user ID
	// itself; anything else gets a fresh identity.
	userID := code
	if len(code) != mcpUserIDLength {
		var err error
		userID, err = GenerateUserID()
		if err != nil {
			logger.Error("user id generation failed", logging.Err(err))
			b.writeError(w, ErrServerError("Failed to establish session"))
			return
		}
	}

	scope := r.FormValue("scope")
	if scope == "" {
		scope = DefaultScope
	}

	pair, err := b.codec.MintPair(userID, scope)
	if err != nil {
		logger.Error("token minting failed", logging.Err(err))
		b.metrics.RecordTokensIssued(r.Context(), "authorization_code", instrumentation.StatusError)
		b.writeError(w, ErrServerError("Failed to issue tokens"))
		return
	}

	logger.Info("tokens issued", logging.Status(logging.StatusSuccess))
	b.metrics.RecordTokensIssued(r.Context(), "authorization_code", instrumentation.StatusSuccess)
	b.writeTokenResponse(w, pair)
}

func (b *Broker) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	refreshToken := r.FormValue("refresh_token")
	if refreshToken == "" {
		b.writeError(w, ErrInvalidRequest("Missing required parameter: refresh_token"))
		return
	}

	claims, err := b.codec.Validate(refreshToken, TokenKindRefresh)
	if err != nil {
		logger.Info("refresh token rejected", logging.Err(err))
		b.metrics.RecordTokenValidation(r.Context(), validationReason(err))
		b.writeError(w, ErrInvalidGrant("Refresh token is invalid or expired"))
		return
	}

	// The new pair keeps the scope the refresh token was granted with. A
	// scope parameter on the request cannot widen it.
	scope := claims.Scope
	if scope == "" {
		scope = DefaultScope
	}

	pair, err := b.codec.MintPair(claims.Subject, scope)
	if err != nil {
		logger.Error("token minting failed", logging.Err(err))
		b.metrics.RecordTokensIssued(r.Context(), "refresh_token", instrumentation.StatusError)
		b.writeError(w, ErrServerError("Failed to issue tokens"))
		return
	}

	logger.Info("tokens rotated", logging.Status(logging.StatusSuccess))
	b.metrics.RecordTokensIssued(r.Context(), "refresh_token", instrumentation.StatusSuccess)
	b.writeTokenResponse(w, pair)
}

// HandleAuthorize implements the GET /oauth/authorize endpoint. It issues an
// authorization code and redirects back to the client, or returns the code
// directly when no redirect URI was given. Only the "code" response type is
// supported.
func (b *Broker) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if rt := query.Get("response_type"); rt != "code" {
		b.writeError(w, ErrUnsupportedResponseType(fmt.Sprintf("Response type %q is not supported", rt)))
		return
	}

	code, err := GenerateUserID()
	if err != nil {
		b.logger.Error("authorization code generation failed", logging.Err(err))
		b.writeError(w, ErrServerError("Failed to issue authorization code"))
		return
	}
	state := query.Get("state")

	redirectURI := query.Get("redirect_uri")
	if redirectURI == "" {
		b.logger.Info("authorization code issued", logging.Operation("authorize"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(authorizeResponse{Code: code, State: state})
		return
	}

	target, err := url.Parse(redirectURI)
	if err != nil || target.Scheme == "" {
		b.writeError(w, ErrInvalidRequest("Invalid redirect_uri"))
		return
	}

	params := target.Query()
	params.Set("code", code)
	if state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()

	b.logger.Info("authorization code issued", logging.Operation("authorize"))
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// authorizeResponse is returned by the authorize endpoint when the client
// supplied no redirect URI.
type authorizeResponse struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

func (b *Broker) writeTokenResponse(w http.ResponseWriter, pair *TokenPair) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	if err := json.NewEncoder(w).Encode(pair); err != nil {
		b.logger.Error("writing token response failed", logging.Err(err))
	}
}

func (b *Broker) writeError(w http.ResponseWriter, oauthErr *OAuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(oauthErr.Status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}
