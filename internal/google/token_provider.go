package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/shcallaway/gmail-mcp-server/internal/crypto"
	"github.com/shcallaway/gmail-mcp-server/internal/instrumentation"
	"github.com/shcallaway/gmail-mcp-server/internal/logging"
	"github.com/shcallaway/gmail-mcp-server/internal/store"
)

// ErrNotLinked is returned when a user has no stored Google credentials.
var ErrNotLinked = errors.New("no linked google account")

// refreshSkew renews tokens slightly before their recorded expiry so a
// token handed to a caller is never about to die mid-request.
const refreshSkew = time.Minute

// TokenProvider is an interface for providing Google OAuth tokens for a
// given MCP user. This abstraction keeps Gmail tool code independent of how
// tokens are stored and refreshed.
type TokenProvider interface {
	// GetTokenForUser returns a valid access token for the user,
	// refreshing it first if the stored one has expired.
	GetTokenForUser(ctx context.Context, mcpUserID string) (*oauth2.Token, error)
}

// StoreTokenProvider implements TokenProvider over the credential store,
// refreshing lazily with the decrypted refresh token.
type StoreTokenProvider struct {
	oauthConfig   *oauth2.Config
	store         store.TokenStore
	encryptionKey string
	metrics       *instrumentation.Metrics
	logger        *slog.Logger
}

var _ TokenProvider = (*StoreTokenProvider)(nil)

// NewStoreTokenProvider returns a provider sharing the Linker's Google
// client settings.
func NewStoreTokenProvider(cfg LinkerConfig, st store.TokenStore, logger *slog.Logger) *StoreTokenProvider {
	if logger == nil {
		logger = slog.Default()
	}
	linker := NewLinker(cfg, st, logger)
	return &StoreTokenProvider{
		oauthConfig:   linker.oauthConfig,
		store:         st,
		encryptionKey: cfg.EncryptionKey,
		metrics:       &instrumentation.Metrics{},
		logger:        logging.WithComponent(logger, "token_provider"),
	}
}

// NewStoreTokenProviderWithMetrics is like NewStoreTokenProvider but records
// refresh attempts on the given metrics.
func NewStoreTokenProviderWithMetrics(cfg LinkerConfig, st store.TokenStore, metrics *instrumentation.Metrics, logger *slog.Logger) *StoreTokenProvider {
	p := NewStoreTokenProvider(cfg, st, logger)
	if metrics != nil {
		p.metrics = metrics
	}
	return p
}

// GetTokenForUser returns the stored access token when it is still fresh,
// otherwise refreshes through Google and patches the stored copy. The
// encrypted refresh token is only decrypted on the refresh path and never
// leaves this method.
func (p *StoreTokenProvider) GetTokenForUser(ctx context.Context, mcpUserID string) (*oauth2.Token, error) {
	creds, err := p.store.GetCredentials(ctx, mcpUserID)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	if creds == nil {
		return nil, ErrNotLinked
	}

	expiry := time.UnixMilli(creds.ExpiryDate)
	if time.Now().Add(refreshSkew).Before(expiry) {
		return &oauth2.Token{
			AccessToken: creds.AccessToken,
			TokenType:   "Bearer",
			Expiry:      expiry,
		}, nil
	}

	refreshToken, err := crypto.Decrypt(creds.RefreshToken, p.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decrypting refresh token: %w", err)
	}

	refreshCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	ts := p.oauthConfig.TokenSource(refreshCtx, &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	token, err := ts.Token()
	if err != nil {
		p.metrics.RecordGoogleTokenRefresh(ctx, instrumentation.ResultFailure)
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}
	p.metrics.RecordGoogleTokenRefresh(ctx, instrumentation.ResultSuccess)

	// Google occasionally rotates the refresh token during a refresh; persist
	// the new one encrypted so the old one going stale cannot strand us.
	var rotatedRefresh string
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		rotatedRefresh, err = crypto.Encrypt(token.RefreshToken, p.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encrypting rotated refresh token: %w", err)
		}
	}

	err = p.store.UpdateAccessToken(ctx, mcpUserID, token.AccessToken, token.Expiry.UnixMilli(), rotatedRefresh)
	if err != nil {
		// The fresh token is still usable even if persisting it failed.
		p.logger.Warn("persisting refreshed token failed",
			logging.Operation("token.refresh"),
			logging.Err(err))
	} else {
		p.logger.Info("access token refreshed",
			logging.Operation("token.refresh"),
			logging.UserHash(creds.Email))
	}

	return token, nil
}
