package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "type" claim. Access tokens authenticate MCP
// requests; refresh tokens are only accepted by the token endpoint.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

const (
	// audience identifies this service in every token it mints.
	audience = "gmail-mcp"

	// AccessTokenTTL is the lifetime of an access token.
	AccessTokenTTL = time.Hour

	// RefreshTokenTTL is the lifetime of a refresh token.
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// Validation failures, ordered by the check that produced them. Validate
// runs its checks in a fixed order so a token failing several checks always
// reports the same reason.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrWrongAudience    = errors.New("token audience mismatch")
	ErrWrongIssuer      = errors.New("token issuer mismatch")
	ErrTokenExpired     = errors.New("token expired")
	ErrWrongTokenKind   = errors.New("wrong token kind")
)

// Claims is the session token payload. Kind distinguishes access from
// refresh tokens; the subject is the MCP user ID. Scope is fixed at mint
// time and travels with the token.
type Claims struct {
	jwt.RegisteredClaims
	Kind  string `json:"type"`
	Scope string `json:"scope,omitempty"`
}

// TokenPair is the token endpoint response body.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
}

// Codec mints and validates HS256 session tokens. The signing secret is
// provided once at construction and never exposed.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec returns a codec signing with secret and stamping issuer into
// every token.
func NewCodec(secret, issuer string) *Codec {
	return &Codec{secret: []byte(secret), issuer: issuer}
}

// MintPair mints a fresh access and refresh token for a user. The scope is
// baked into both tokens so a later refresh cannot widen it.
func (c *Codec) MintPair(userID, scope string) (*TokenPair, error) {
	accessToken, err := c.mint(userID, TokenKindAccess, scope, AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("minting access token: %w", err)
	}
	refreshToken, err := c.mint(userID, TokenKindRefresh, scope, RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("minting refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        scope,
	}, nil
}

func (c *Codec) mint(userID, kind, scope string, ttl time.Duration) (string, error) {
	// A random jti makes every minted token unique even when two mints for
	// the same user land in the same second.
	jti := make([]byte, 8)
	if _, err := rand.Read(jti); err != nil {
		return "", fmt.Errorf("generating token id: %w", err)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        hex.EncodeToString(jti),
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audience},
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind:  kind,
		Scope: scope,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Validate parses a token and checks it in a fixed order: signature,
// audience, issuer, expiry, then kind. The first failing check determines
// the returned error.
func (c *Codec) Validate(tokenString, wantKind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !hasAudience(claims.Audience, audience) {
		return nil, ErrWrongAudience
	}
	if claims.Issuer != c.issuer {
		return nil, ErrWrongIssuer
	}
	if claims.ExpiresAt == nil || time.Now().After(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	if claims.Kind != wantKind {
		return nil, ErrWrongTokenKind
	}

	return claims, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// ExtractBearerToken pulls the token out of an Authorization header value.
// Only the exact two-field "Bearer <token>" shape is accepted.
func ExtractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("invalid Authorization header format")
	}
	return parts[1], nil
}
