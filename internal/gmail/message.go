package gmail

import (
	"encoding/base64"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// Summary is a flattened view of a Gmail message suitable for listing.
type Summary struct {
	ID       string
	ThreadID string
	From     string
	To       string
	Subject  string
	Date     string
	Snippet  string
}

// Summarize extracts the common headers and snippet from a message.
func Summarize(msg *gmailv1.Message) Summary {
	return Summary{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		From:     HeaderValue(msg, "From"),
		To:       HeaderValue(msg, "To"),
		Subject:  HeaderValue(msg, "Subject"),
		Date:     HeaderValue(msg, "Date"),
		Snippet:  msg.Snippet,
	}
}

// HeaderValue returns the value of the named header, matching
// case-insensitively. Returns an empty string when the header is absent.
func HeaderValue(msg *gmailv1.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ExtractBody returns the decoded text body of a message payload. It
// prefers a text/plain part, falling back to text/html, and walks nested
// multipart structures.
func ExtractBody(payload *gmailv1.MessagePart) string {
	if payload == nil {
		return ""
	}

	if body := findBody(payload, "text/plain"); body != "" {
		return body
	}
	return findBody(payload, "text/html")
}

func findBody(part *gmailv1.MessagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			// Some senders omit padding.
			decoded, err = base64.RawURLEncoding.DecodeString(part.Body.Data)
			if err != nil {
				return ""
			}
		}
		return string(decoded)
	}

	for _, child := range part.Parts {
		if body := findBody(child, mimeType); body != "" {
			return body
		}
	}

	return ""
}
