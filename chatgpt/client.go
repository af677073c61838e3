package chatgpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ErrMissingAccessToken is returned before any network call when a client has no token.
var ErrMissingAccessToken = errors.New("chatgpt: access token is required")

// Error is returned for every failed conversation call. StatusCode is the upstream HTTP status,
// or 0 when no usable response was received.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("chatgpt")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Reply is the assistant message the conversation endpoint settled on.
type Reply struct {
	ID             string
	ConversationID string
	Text           string
}

// Factory builds token-scoped clients that share one connection pool and one endpoint.
type Factory struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

// NewFactory returns a Factory for the conversation endpoint. A nil httpClient means http.DefaultClient.
func NewFactory(httpClient *http.Client, endpoint, model string) *Factory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Factory{
		httpClient: httpClient,
		endpoint:   endpoint,
		model:      model,
	}
}

// Endpoint is the URL every client built by f talks to.
func (f *Factory) Endpoint() string { return f.endpoint }

// New returns a client bound to accessToken. Clients are cheap and meant to live for one request.
func (f *Factory) New(accessToken string) *Client {
	return &Client{
		accessToken: accessToken,
		endpoint:    f.endpoint,
		model:       f.model,
		httpClient:  f.httpClient,
	}
}

// Client sends prompts to a ChatGPT reverse-proxy conversation endpoint on behalf of one access token.
type Client struct {
	accessToken string
	endpoint    string
	model       string
	httpClient  *http.Client
}

// Endpoint is the URL the client posts conversations to.
func (c *Client) Endpoint() string { return c.endpoint }

// SendMessage starts a new conversation with prompt as the only user message and waits for the
// complete assistant reply.
func (c *Client) SendMessage(ctx context.Context, prompt string) (*Reply, error) {
	if c.accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	body, err := json.Marshal(newConversationRequest(c.model, prompt))
	if err != nil {
		return nil, &Error{Message: "could not encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: "could not create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: errorDetail(resp.Body)}
	}

	reply, err := readReply(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Message: "request canceled", Err: ctxErr}
		}
		return nil, err
	}
	return reply, nil
}

func newConversationRequest(model, prompt string) conversationRequest {
	return conversationRequest{
		Action: "next",
		Messages: []conversationMessage{
			{
				ID:   uuid.NewString(),
				Role: "user",
				Content: messageContent{
					ContentType: "text",
					Parts:       []string{prompt},
				},
			},
		},
		Model:           model,
		ParentMessageID: uuid.NewString(),
	}
}

const maxErrorBody = 4 << 10

// errorDetail extracts a readable message from an error response body.
func errorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Detail != nil {
		switch d := payload.Detail.(type) {
		case string:
			return d
		case map[string]any:
			if msg, ok := d["message"].(string); ok {
				return msg
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
