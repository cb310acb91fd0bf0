package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/shcallaway/gmail-mcp-server/internal/auth"
	"github.com/shcallaway/gmail-mcp-server/internal/google"
	"github.com/shcallaway/gmail-mcp-server/internal/instrumentation"
	"github.com/shcallaway/gmail-mcp-server/internal/logging"
)

// startLinkResponse is the JSON body returned by /oauth/start.
type startLinkResponse struct {
	AuthURL string `json:"auth_url"`
}

// handleOAuthStart begins Google account linking for the authenticated
// user. It returns the consent URL the client should open in a browser.
func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		s.writeJSONError(w, http.StatusUnauthorized, "invalid_token", "Not authenticated")
		return
	}

	var scopes []string
	if raw := r.URL.Query().Get("scope"); raw != "" {
		scopes = strings.Fields(raw)
	}

	authURL, err := s.linker.BeginLink(r.Context(), userID, scopes)
	if err != nil {
		s.logger.Error("starting link failed", logging.Err(err))
		s.writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to start account linking")
		return
	}

	s.metrics.RecordOAuthStateIssued(r.Context())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(startLinkResponse{AuthURL: authURL})
}

// handleOAuthCallback redeems the redirect back from Google. On success the
// user's credentials are stored and a plain confirmation page is rendered;
// the MCP session itself needs no further action.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		s.logger.Warn("authorization denied by google",
			logging.Operation("link.callback"))
		s.writeCallbackPage(w, http.StatusBadRequest, "Authorization failed",
			fmt.Sprintf("Google reported an error: %s", errCode))
		return
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		s.writeCallbackPage(w, http.StatusBadRequest, "Authorization failed",
			"Missing state or code parameter")
		return
	}

	event := instrumentation.NewAuthEvent("link_completed").WithSpanContext(r.Context())

	creds, err := s.linker.CompleteLink(r.Context(), state, code)
	if err != nil {
		if s.audit != nil {
			s.audit.LogAuthEvent(event.Complete(false, err))
		}
		if errors.Is(err, google.ErrInvalidState) {
			s.metrics.RecordOAuthStateConsumed(r.Context(), instrumentation.ResultInvalid)
			s.writeCallbackPage(w, http.StatusBadRequest, "Authorization failed",
				"The authorization link is invalid or has expired. Please start over.")
			return
		}
		s.logger.Error("completing link failed",
			logging.Operation("link.callback"), logging.Err(err))
		s.writeCallbackPage(w, http.StatusInternalServerError, "Authorization failed",
			"Something went wrong while linking your account. Please try again.")
		return
	}

	s.metrics.RecordOAuthStateConsumed(r.Context(), instrumentation.ResultSuccess)
	if s.audit != nil {
		s.audit.LogAuthEvent(event.
			WithUser(creds.MCPUserID).
			WithEmail(creds.Email).
			Complete(true, nil))
	}

	s.writeCallbackPage(w, http.StatusOK, "Account linked",
		fmt.Sprintf("Gmail account %s is now connected. You can close this window.", creds.Email))
}

func (s *Server) writeCallbackPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(auth.ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}
