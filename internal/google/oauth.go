package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/shcallaway/gmail-mcp-server/internal/crypto"
	"github.com/shcallaway/gmail-mcp-server/internal/logging"
	"github.com/shcallaway/gmail-mcp-server/internal/store"
)

// stateTTL bounds how long a pending authorization stays redeemable.
const stateTTL = 10 * time.Minute

// exchangeTimeout bounds every outbound call to Google during the callback.
const exchangeTimeout = 30 * time.Second

// DefaultScopes are requested when a link request names none.
var DefaultScopes = []string{
	gmail.GmailReadonlyScope,
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// ErrInvalidState is returned when a callback state is unknown, expired, or
// already consumed. The three cases are deliberately indistinguishable.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// LinkerConfig carries the Google client settings for a Linker.
type LinkerConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	EncryptionKey string
}

// Linker runs the Google side of account linking: it hands out consent URLs
// backed by single-use states, and turns callback codes into stored,
// encrypted credentials.
type Linker struct {
	oauthConfig   *oauth2.Config
	store         store.TokenStore
	encryptionKey string
	logger        *slog.Logger
}

// NewLinker builds a Linker from config, persisting through st.
func NewLinker(cfg LinkerConfig, st store.TokenStore, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     googleoauth.Endpoint,
			RedirectURL:  cfg.RedirectURI,
		},
		store:         st,
		encryptionKey: cfg.EncryptionKey,
		logger:        logging.WithComponent(logger, "google"),
	}
}

// BeginLink records a pending authorization for a user and returns the
// Google consent URL to send them to. The state and PKCE verifier live in
// the store until the callback consumes them or they expire.
func (l *Linker) BeginLink(ctx context.Context, mcpUserID string, scopes []string) (string, error) {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	state, err := crypto.GenerateSecureState()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("generating code verifier: %w", err)
	}

	err = l.store.SaveOAuthState(ctx, &store.OAuthState{
		State:        state,
		MCPUserID:    mcpUserID,
		ExpiresAt:    time.Now().Add(stateTTL).UnixMilli(),
		Scopes:       strings.Join(scopes, " "),
		CodeVerifier: verifier,
	})
	if err != nil {
		return "", fmt.Errorf("saving oauth state: %w", err)
	}

	cfg := *l.oauthConfig
	cfg.Scopes = scopes

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", GenerateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	l.logger.Info("link started",
		logging.Operation("link.begin"),
		slog.String("scopes", strings.Join(scopes, " ")))

	return authURL, nil
}

// CompleteLink redeems a Google callback. It consumes the state, exchanges
// the code with the stored PKCE verifier, resolves the Google identity, and
// persists the credential set with the refresh token encrypted.
func (l *Linker) CompleteLink(ctx context.Context, state, code string) (*store.GmailCredentials, error) {
	pending, err := l.store.ConsumeOAuthState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("consuming oauth state: %w", err)
	}
	if pending == nil {
		return nil, ErrInvalidState
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	token, err := l.oauthConfig.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", pending.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, errors.New("google returned no refresh token")
	}

	userInfo, err := l.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetching user info: %w", err)
	}

	encryptedRefresh, err := crypto.Encrypt(token.RefreshToken, l.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encrypting refresh token: %w", err)
	}

	creds := &store.GmailCredentials{
		MCPUserID:    pending.MCPUserID,
		GoogleUserID: userInfo.Id,
		Email:        userInfo.Email,
		AccessToken:  token.AccessToken,
		RefreshToken: encryptedRefresh,
		ExpiryDate:   token.Expiry.UnixMilli(),
		Scope:        pending.Scopes,
	}
	if err := l.store.SaveCredentials(ctx, creds); err != nil {
		return nil, fmt.Errorf("saving credentials: %w", err)
	}

	l.logger.Info("link completed",
		logging.Operation("link.complete"),
		logging.UserHash(userInfo.Email),
		logging.Domain(userInfo.Email))

	return creds, nil
}

// Unlink removes a user's stored Google credentials.
func (l *Linker) Unlink(ctx context.Context, mcpUserID string) error {
	return l.store.DeleteCredentials(ctx, mcpUserID)
}

func (l *Linker) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*goauth2.Userinfo, error) {
	svc, err := goauth2.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, err
	}
	return svc.Userinfo.Get().Context(ctx).Do()
}
