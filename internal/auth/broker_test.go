package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker() *Broker {
	return NewBroker(newTestCodec(), testIssuer, nil)
}

func postToken(t *testing.T, b *Broker, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	b.HandleToken(rec, req)
	return rec
}

func decodeTokenResponse(t *testing.T, rec *httptest.ResponseRecorder) *TokenPair {
	t.Helper()
	var pair TokenPair
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pair))
	return &pair
}

func TestHandleToken_AuthorizationCode_ReusesUserIDLengthCode(t *testing.T) {
	b := newTestBroker()
	code := strings.Repeat("ab", 16) // 32 chars, same shape as a user ID

	rec := postToken(t, b, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	pair := decodeTokenResponse(t, rec)
	assert.Equal(t, DefaultScope, pair.Scope)

	claims, err := b.codec.Validate(pair.AccessToken, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, code, claims.Subject)
}

func TestHandleToken_AuthorizationCode_FreshUserIDForOtherCodes(t *testing.T) {
	b := newTestBroker()

	rec := postToken(t, b, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {"short-code"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	pair := decodeTokenResponse(t, rec)

	claims, err := b.codec.Validate(pair.AccessToken, TokenKindAccess)
	require.NoError(t, err)
	assert.Len(t, claims.Subject, 32)
	assert.NotEqual(t, "short-code", claims.Subject)
}

func TestHandleToken_AuthorizationCode_MissingCode(t *testing.T) {
	rec := postToken(t, newTestBroker(), url.Values{
		"grant_type": {"authorization_code"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "invalid_request", resp.Error)
}

func TestHandleToken_RefreshGrant_PreservesSubject(t *testing.T) {
	b := newTestBroker()
	original, err := b.codec.MintPair("user-abc", "mcp:tools")
	require.NoError(t, err)

	rec := postToken(t, b, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {original.RefreshToken},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decodeTokenResponse(t, rec)

	claims, err := b.codec.Validate(rotated.AccessToken, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-abc", claims.Subject)

	// Stateless rotation: the old refresh token is still accepted.
	again := postToken(t, b, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {original.RefreshToken},
	})
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestHandleToken_RefreshGrant_KeepsGrantedScope(t *testing.T) {
	b := newTestBroker()
	original, err := b.codec.MintPair("user-abc", "mcp:tools")
	require.NoError(t, err)

	// A scope parameter on the refresh request must not re-scope the pair.
	rec := postToken(t, b, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {original.RefreshToken},
		"scope":         {"admin:everything"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decodeTokenResponse(t, rec)
	assert.Equal(t, "mcp:tools", rotated.Scope)

	claims, err := b.codec.Validate(rotated.AccessToken, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "mcp:tools", claims.Scope)
}

func TestHandleToken_RefreshGrant_RejectsAccessToken(t *testing.T) {
	b := newTestBroker()
	pair, err := b.codec.MintPair("user-abc", "")
	require.NoError(t, err)

	rec := postToken(t, b, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {pair.AccessToken},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "invalid_grant", resp.Error)
}

func TestHandleToken_UnsupportedGrantType(t *testing.T) {
	rec := postToken(t, newTestBroker(), url.Values{
		"grant_type": {"client_credentials"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unsupported_grant_type", resp.Error)
}

func TestHandleToken_MethodNotAllowed(t *testing.T) {
	b := newTestBroker()
	req := httptest.NewRequest(http.MethodGet, "/oauth/token", nil)
	rec := httptest.NewRecorder()
	b.HandleToken(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleAuthorize_RedirectsWithCodeAndState(t *testing.T) {
	b := newTestBroker()
	req := httptest.NewRequest(http.MethodGet,
		"/oauth/authorize?response_type=code&redirect_uri=https%3A%2F%2Fclient.example.com%2Fcb&state=xyz", nil)
	rec := httptest.NewRecorder()
	b.HandleAuthorize(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "client.example.com", location.Host)
	assert.Len(t, location.Query().Get("code"), 32)
	assert.Equal(t, "xyz", location.Query().Get("state"))
}

func TestHandleAuthorize_UnsupportedResponseType(t *testing.T) {
	b := newTestBroker()
	req := httptest.NewRequest(http.MethodGet,
		"/oauth/authorize?response_type=token&redirect_uri=https%3A%2F%2Fclient.example.com%2Fcb", nil)
	rec := httptest.NewRecorder()
	b.HandleAuthorize(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unsupported_response_type", resp.Error)
}

func TestHandleAuthorize_NoRedirectURIReturnsCode(t *testing.T) {
	b := newTestBroker()
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?response_type=code&state=xyz", nil)
	rec := httptest.NewRecorder()
	b.HandleAuthorize(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp authorizeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Code, 32)
	assert.Equal(t, "xyz", resp.State)
}

func TestHandleAuthorize_InvalidRedirectURI(t *testing.T) {
	b := newTestBroker()
	req := httptest.NewRequest(http.MethodGet,
		"/oauth/authorize?response_type=code&redirect_uri=not-a-url", nil)
	rec := httptest.NewRecorder()
	b.HandleAuthorize(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireAuth(t *testing.T) {
	b := newTestBroker()

	var gotUserID, gotScope string
	handler := b.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		gotScope, _ = ScopeFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "oauth-protected-resource")
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		pair, err := b.codec.MintPair("user-abc", "")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid access token", func(t *testing.T) {
		pair, err := b.codec.MintPair("user-abc", "mcp:tools")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-abc", gotUserID)
		assert.Equal(t, "mcp:tools", gotScope)
	})
}

func TestGenerateUserID(t *testing.T) {
	a, err := GenerateUserID()
	require.NoError(t, err)
	b, err := GenerateUserID()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
