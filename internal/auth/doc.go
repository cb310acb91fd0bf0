// Package auth implements the MCP-facing OAuth 2.0 surface: HS256 session
// tokens, the authorize and token endpoints, and bearer auth middleware.
//
// Session tokens are minted in access/refresh pairs distinguished by a
// "type" claim. Refresh rotation is stateless: redeeming a refresh token
// yields a new pair but does not revoke the old token, which simply ages
// out at its original expiry.
package auth
