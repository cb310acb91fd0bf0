package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/shcallaway/gmail-mcp-server/internal/auth"
	"github.com/shcallaway/gmail-mcp-server/internal/gmail"
	"github.com/shcallaway/gmail-mcp-server/internal/google"
	"github.com/shcallaway/gmail-mcp-server/internal/instrumentation"
	"github.com/shcallaway/gmail-mcp-server/internal/logging"
)

const notLinkedMessage = `No Gmail account is linked to this session. To link one:

1. Call GET /oauth/start with your session token to obtain a consent URL
2. Open the URL in a browser and approve access to your Gmail account
3. Retry this tool once the confirmation page appears`

// toolset holds the dependencies shared by all Gmail tool handlers.
type toolset struct {
	tokens  google.TokenProvider
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// register adds all Gmail tools to the MCP server.
func (t *toolset) register(s *mcpserver.MCPServer) {
	getProfileTool := mcp.NewTool("gmail_get_profile",
		mcp.WithDescription("Get the Gmail profile (email address, message and thread totals) of the linked account"),
	)
	s.AddTool(getProfileTool, t.instrumented("gmail_get_profile", t.handleGetProfile))

	listMessagesTool := mcp.NewTool("gmail_list_messages",
		mcp.WithDescription("List Gmail messages matching a search query"),
		mcp.WithString("query",
			mcp.Description("Gmail search query (e.g. 'in:inbox', 'from:user@example.com'). Defaults to 'in:inbox'"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of messages to return (default: 10, max: 100)"),
		),
	)
	s.AddTool(listMessagesTool, t.instrumented("gmail_list_messages", t.handleListMessages))

	getMessageTool := mcp.NewTool("gmail_get_message",
		mcp.WithDescription("Read a single Gmail message including its body"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to read"),
		),
	)
	s.AddTool(getMessageTool, t.instrumented("gmail_get_message", t.handleGetMessage))
}

// toolHandler is a tool handler that already has a Gmail client for the
// calling user.
type toolHandler func(ctx context.Context, request mcp.CallToolRequest, client *gmail.Client) (*mcp.CallToolResult, error)

// instrumented wraps a handler with span creation, metrics recording, and
// per-user Gmail client construction.
func (t *toolset) instrumented(name string, fn toolHandler) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, name)
		defer span.End()
		start := time.Now()

		client, errResult := t.clientForRequest(ctx)
		if errResult != nil {
			t.metrics.RecordToolInvocation(ctx, name, instrumentation.StatusError, time.Since(start))
			return errResult, nil
		}

		result, err := fn(ctx, request, client)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		t.metrics.RecordToolInvocation(ctx, name, status, time.Since(start))

		return result, err
	}
}

// clientForRequest resolves the calling user's Google token and builds a
// Gmail client for it. Failures are returned as tool results so the model
// sees an actionable message instead of a transport error.
func (t *toolset) clientForRequest(ctx context.Context) (*gmail.Client, *mcp.CallToolResult) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return nil, mcp.NewToolResultError("Not authenticated")
	}

	token, err := t.tokens.GetTokenForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, google.ErrNotLinked) {
			return nil, mcp.NewToolResultError(notLinkedMessage)
		}
		t.logger.Error("obtaining google token failed",
			logging.Operation("tool.credentials"),
			logging.Err(err))
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to obtain Google credentials: %v", err))
	}

	client, err := gmail.NewClient(ctx, token)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to create Gmail client: %v", err))
	}
	return client, nil
}

func (t *toolset) handleGetProfile(ctx context.Context, _ mcp.CallToolRequest, client *gmail.Client) (*mcp.CallToolResult, error) {
	start := time.Now()
	profile, err := client.Profile(ctx)
	t.metrics.RecordGoogleAPIOperation(ctx, "gmail", "users.getProfile", statusFor(err), time.Since(start))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get profile: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Email: %s\nTotal messages: %d\nTotal threads: %d\nHistory ID: %d",
		profile.EmailAddress, profile.MessagesTotal, profile.ThreadsTotal, profile.HistoryId)), nil
}

func (t *toolset) handleListMessages(ctx context.Context, request mcp.CallToolRequest, client *gmail.Client) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query := "in:inbox"
	if queryVal, ok := args["query"].(string); ok && queryVal != "" {
		query = queryVal
	}

	maxResults := int64(10)
	if maxResultsVal, ok := args["maxResults"].(float64); ok && maxResultsVal > 0 {
		maxResults = int64(maxResultsVal)
	}
	if maxResults > 100 {
		maxResults = 100
	}

	start := time.Now()
	messages, err := client.SearchMessages(ctx, query, maxResults)
	t.metrics.RecordGoogleAPIOperation(ctx, "gmail", "messages.list", statusFor(err), time.Since(start))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list messages: %v", err)), nil
	}

	return mcp.NewToolResultText(formatMessageList(messages)), nil
}

func (t *toolset) handleGetMessage(ctx context.Context, request mcp.CallToolRequest, client *gmail.Client) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	messageID, ok := args["messageId"].(string)
	if !ok || messageID == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	start := time.Now()
	msg, err := client.GetMessage(ctx, messageID)
	t.metrics.RecordGoogleAPIOperation(ctx, "gmail", "messages.get", statusFor(err), time.Since(start))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get message: %v", err)), nil
	}

	summary := gmail.Summarize(msg)
	body := gmail.ExtractBody(msg.Payload)
	if body == "" {
		body = "(no readable body)"
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"From: %s\nTo: %s\nSubject: %s\nDate: %s\n\n%s",
		summary.From, summary.To, summary.Subject, summary.Date, body)), nil
}

// formatMessageList renders message summaries as numbered plain text.
func formatMessageList(messages []gmail.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d messages:\n", len(messages))
	for i, m := range messages {
		fmt.Fprintf(&b, "%d. ID: %s | From: %s | Subject: %s | Date: %s\n   %s\n",
			i+1, m.ID, m.From, m.Subject, m.Date, m.Snippet)
	}
	return b.String()
}

func statusFor(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}
