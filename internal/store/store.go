package store

import (
	"context"
	"errors"
)

// ErrDuplicateState is returned when saving an OAuth state whose value
// already exists in the ledger.
var ErrDuplicateState = errors.New("oauth state already exists")

// ErrStoreUnavailable wraps backend failures so callers can distinguish an
// unhealthy store from a normal miss.
var ErrStoreUnavailable = errors.New("store unavailable")

// GmailCredentials holds one user's Google credential set. The refresh token
// is stored encrypted; the access token is short-lived and stored in the
// clear so the lazy refresh path can compare expiry without a decrypt.
type GmailCredentials struct {
	MCPUserID    string `gorm:"column:mcp_user_id;primaryKey"`
	GoogleUserID string `gorm:"column:google_user_id;not null"`
	Email        string `gorm:"column:email;not null"`
	AccessToken  string `gorm:"column:access_token;not null"`
	RefreshToken string `gorm:"column:refresh_token;not null"`
	// ExpiryDate is the access token expiry in Unix milliseconds.
	ExpiryDate int64  `gorm:"column:expiry_date;not null"`
	Scope      string `gorm:"column:scope;not null"`
	CreatedAt  int64  `gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt  int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (GmailCredentials) TableName() string { return "gmail_credentials" }

// OAuthState is a single-use CSRF record for an in-flight Google
// authorization. The state value doubles as the primary key, which is what
// makes duplicate detection and single-use consumption atomic.
type OAuthState struct {
	State     string `gorm:"column:state;primaryKey"`
	MCPUserID string `gorm:"column:mcp_user_id;not null"`
	// ExpiresAt is the ledger entry expiry in Unix milliseconds.
	ExpiresAt    int64  `gorm:"column:expires_at;not null;index"`
	Scopes       string `gorm:"column:scopes;not null"`
	CodeVerifier string `gorm:"column:code_verifier;not null"`
	CreatedAt    int64  `gorm:"column:created_at;autoCreateTime:milli"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (OAuthState) TableName() string { return "oauth_states" }

// TokenStore persists user credentials and the OAuth state ledger.
// Implementations must be safe for concurrent use.
type TokenStore interface {
	// GetCredentials returns the credential row for a user, or (nil, nil)
	// when the user has never linked an account.
	GetCredentials(ctx context.Context, mcpUserID string) (*GmailCredentials, error)

	// SaveCredentials inserts or fully replaces a user's credential row,
	// preserving the original created_at on replace.
	SaveCredentials(ctx context.Context, creds *GmailCredentials) error

	// UpdateAccessToken replaces only the access token and its expiry,
	// leaving the identity columns untouched. A non-empty
	// encryptedRefreshToken also rotates the stored refresh token, for the
	// case where Google returns a new one alongside the refreshed access
	// token.
	UpdateAccessToken(ctx context.Context, mcpUserID, accessToken string, expiryDate int64, encryptedRefreshToken string) error

	// DeleteCredentials removes a user's credential row. Deleting a missing
	// row is not an error.
	DeleteCredentials(ctx context.Context, mcpUserID string) error

	// SaveOAuthState records a new single-use state. Returns
	// ErrDuplicateState if the state value is already present.
	SaveOAuthState(ctx context.Context, state *OAuthState) error

	// ConsumeOAuthState atomically retrieves and deletes a non-expired
	// state. Returns (nil, nil) when the state is absent or expired; an
	// expired state can never be consumed.
	ConsumeOAuthState(ctx context.Context, state string) (*OAuthState, error)

	// CleanupExpiredStates deletes all expired ledger entries and returns
	// how many were removed.
	CleanupExpiredStates(ctx context.Context) (int64, error)

	// Close releases the underlying database handle.
	Close() error
}
