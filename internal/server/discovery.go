package server

import (
	"encoding/json"
	"net/http"
)

// protectedResourceMetadata is the RFC 9728 protected resource document.
type protectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

// authorizationServerMetadata is the RFC 8414 authorization server document.
type authorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
}

// handleProtectedResourceMetadata serves /.well-known/oauth-protected-resource
// so MCP clients can discover where to authenticate.
func (s *Server) handleProtectedResourceMetadata(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(protectedResourceMetadata{
		Resource:               s.cfg.BaseURL,
		AuthorizationServers:   []string{s.cfg.BaseURL},
		BearerMethodsSupported: []string{"header"},
	})
}

// handleAuthorizationServerMetadata serves /.well-known/oauth-authorization-server.
func (s *Server) handleAuthorizationServerMetadata(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(authorizationServerMetadata{
		Issuer:                            s.cfg.BaseURL,
		AuthorizationEndpoint:             s.cfg.BaseURL + "/oauth/authorize",
		TokenEndpoint:                     s.cfg.BaseURL + "/oauth/token",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		ScopesSupported:                   []string{"mcp:tools"},
	})
}
