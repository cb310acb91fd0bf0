// Package google handles the Google side of account linking: PKCE-protected
// consent URLs, callback code exchange, identity resolution, and lazy access
// token refresh backed by the credential store.
package google
