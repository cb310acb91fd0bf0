package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCredentials(userID string) *GmailCredentials {
	return &GmailCredentials{
		MCPUserID:    userID,
		GoogleUserID: "google-" + userID,
		Email:        userID + "@example.com",
		AccessToken:  "access-" + userID,
		RefreshToken: "encrypted-refresh-" + userID,
		ExpiryDate:   time.Now().Add(time.Hour).UnixMilli(),
		Scope:        "https://www.googleapis.com/auth/gmail.readonly",
	}
}

func TestGetCredentials_Missing(t *testing.T) {
	s := newTestStore(t)

	creds, err := s.GetCredentials(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestSaveAndGetCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := testCredentials("alice")
	require.NoError(t, s.SaveCredentials(ctx, want))

	got, err := s.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.GoogleUserID, got.GoogleUserID)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.Equal(t, want.ExpiryDate, got.ExpiryDate)
	assert.NotZero(t, got.CreatedAt)
}

func TestSaveCredentials_UpsertPreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCredentials(ctx, testCredentials("alice")))
	first, err := s.GetCredentials(ctx, "alice")
	require.NoError(t, err)

	relinked := testCredentials("alice")
	relinked.AccessToken = "new-access"
	relinked.RefreshToken = "new-encrypted-refresh"
	require.NoError(t, s.SaveCredentials(ctx, relinked))

	got, err := s.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
	assert.Equal(t, "new-encrypted-refresh", got.RefreshToken)
	assert.Equal(t, first.CreatedAt, got.CreatedAt)
}

func TestUpdateAccessToken_LeavesRefreshTokenAlone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCredentials(ctx, testCredentials("alice")))

	newExpiry := time.Now().Add(2 * time.Hour).UnixMilli()
	require.NoError(t, s.UpdateAccessToken(ctx, "alice", "refreshed-access", newExpiry, ""))

	got, err := s.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", got.AccessToken)
	assert.Equal(t, newExpiry, got.ExpiryDate)
	assert.Equal(t, "encrypted-refresh-alice", got.RefreshToken)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestUpdateAccessToken_RotatesRefreshToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCredentials(ctx, testCredentials("alice")))

	newExpiry := time.Now().Add(2 * time.Hour).UnixMilli()
	require.NoError(t, s.UpdateAccessToken(ctx, "alice", "refreshed-access", newExpiry, "rotated-encrypted-refresh"))

	got, err := s.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", got.AccessToken)
	assert.Equal(t, "rotated-encrypted-refresh", got.RefreshToken)
}

func TestUpdateAccessToken_MissingUser(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateAccessToken(context.Background(), "nobody", "token", time.Now().UnixMilli(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestDeleteCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCredentials(ctx, testCredentials("alice")))
	require.NoError(t, s.DeleteCredentials(ctx, "alice"))

	got, err := s.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an absent row is fine.
	require.NoError(t, s.DeleteCredentials(ctx, "alice"))
}

func testState(state string, ttl time.Duration) *OAuthState {
	return &OAuthState{
		State:        state,
		MCPUserID:    "alice",
		ExpiresAt:    time.Now().Add(ttl).UnixMilli(),
		Scopes:       "https://www.googleapis.com/auth/gmail.readonly",
		CodeVerifier: "verifier-" + state,
	}
}

func TestSaveOAuthState_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOAuthState(ctx, testState("abc", 10*time.Minute)))

	err := s.SaveOAuthState(ctx, testState("abc", 10*time.Minute))
	assert.ErrorIs(t, err, ErrDuplicateState)
}

func TestConsumeOAuthState_SingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOAuthState(ctx, testState("abc", 10*time.Minute)))

	got, err := s.ConsumeOAuthState(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.MCPUserID)
	assert.Equal(t, "verifier-abc", got.CodeVerifier)

	// Second consumption of the same state must fail.
	again, err := s.ConsumeOAuthState(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestConsumeOAuthState_Expired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOAuthState(ctx, testState("stale", -time.Minute)))

	got, err := s.ConsumeOAuthState(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsumeOAuthState_Unknown(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ConsumeOAuthState(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCleanupExpiredStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOAuthState(ctx, testState("fresh", 10*time.Minute)))
	require.NoError(t, s.SaveOAuthState(ctx, testState("stale-1", -time.Minute)))
	require.NoError(t, s.SaveOAuthState(ctx, testState("stale-2", -time.Hour)))

	removed, err := s.CleanupExpiredStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	// The fresh state is still consumable.
	got, err := s.ConsumeOAuthState(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
