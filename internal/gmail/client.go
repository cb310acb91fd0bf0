package gmail

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// maxPageSize is the largest page the Gmail API serves per list call.
const maxPageSize = 100

// summaryHeaders are the headers fetched when listing messages.
var summaryHeaders = []string{"From", "To", "Subject", "Date"}

// Client wraps the Gmail Users service for one authenticated mailbox.
type Client struct {
	svc *gmailv1.UsersService
}

// NewClient creates a Gmail client authenticated with the given Google
// access token.
func NewClient(ctx context.Context, token *oauth2.Token) (*Client, error) {
	svc, err := gmailv1.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users}, nil
}

// Profile returns the mailbox profile of the authenticated user.
func (c *Client) Profile(ctx context.Context) (*gmailv1.Profile, error) {
	profile, err := c.svc.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// SearchMessages lists messages matching the query and hydrates each with
// its headers and snippet. It fetches up to maxResults messages, paging
// through the API as needed.
func (c *Client) SearchMessages(ctx context.Context, query string, maxResults int64) ([]Summary, error) {
	ids, err := c.listMessageIDs(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		msg, err := c.svc.Messages.Get("me", id).
			Format("metadata").
			MetadataHeaders(summaryHeaders...).
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", id, err)
		}
		summaries = append(summaries, Summarize(msg))
	}

	return summaries, nil
}

// GetMessage retrieves a full message, including its body, by ID.
func (c *Client) GetMessage(ctx context.Context, id string) (*gmailv1.Message, error) {
	msg, err := c.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}

// listMessageIDs pages through messages.list until maxResults IDs are
// collected or the result set is exhausted.
func (c *Client) listMessageIDs(ctx context.Context, query string, maxResults int64) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		remaining := maxResults - int64(len(ids))
		if remaining <= 0 {
			break
		}

		pageSize := remaining
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		req := c.svc.Messages.List("me").Q(query).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		res, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}

		if res.NextPageToken == "" || int64(len(ids)) >= maxResults {
			break
		}
		pageToken = res.NextPageToken
	}

	if int64(len(ids)) > maxResults {
		ids = ids[:maxResults]
	}

	return ids, nil
}
