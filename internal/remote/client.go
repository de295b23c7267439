// Package remote is the thin client for the hosted backend's RPC surface.
// Payload shapes are dictated by the backend; this client only maps its
// error codes onto the terminal/transient taxonomy the queue needs.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/perkshq/perks/internal/cache"
)

// Client talks to the hosted backend API.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient creates a backend client for the given base URL and bearer
// token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
}

// SendMessage delivers one message. idempotencyKey rides in the
// Idempotency-Key header so the server can collapse duplicate attempts.
// Terminal rejections map to the sentinel errors in this package; anything
// else is transient.
func (c *Client) SendMessage(ctx context.Context, conversationID, body, idempotencyKey string) (*cache.Message, error) {
	payload, err := json.Marshal(sendMessageRequest{
		ConversationID: conversationID,
		Content:        body,
		MessageType:    "text",
	})
	if err != nil {
		return nil, fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/send_message", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.decodeError(resp)
	}

	var msg cache.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Status == "" {
		msg.Status = cache.StatusSent
	}
	return &msg, nil
}

// ListConversations fetches the caller's conversations, most recent
// activity first.
func (c *Client) ListConversations(ctx context.Context, limit int) ([]cache.Conversation, error) {
	var convs []cache.Conversation
	if err := c.get(ctx, "/rpc/list_conversations", url.Values{
		"limit": {strconv.Itoa(limit)},
	}, &convs); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// ListMessages fetches recent messages for one conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]cache.Message, error) {
	var msgs []cache.Message
	if err := c.get(ctx, "/rpc/list_messages", url.Values{
		"conversation_id": {conversationID},
		"limit":           {strconv.Itoa(limit)},
	}, &msgs); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ListBusinesses fetches the businesses the caller follows.
func (c *Client) ListBusinesses(ctx context.Context, limit int) ([]cache.Business, error) {
	var businesses []cache.Business
	if err := c.get(ctx, "/rpc/list_businesses", url.Values{
		"limit": {strconv.Itoa(limit)},
	}, &businesses); err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	return businesses, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil {
		switch apiErr.Code {
		case "not_authenticated":
			return fmt.Errorf("%w: %s", ErrUnauthenticated, apiErr.Message)
		case "not_friends":
			return fmt.Errorf("%w: %s", ErrNotFriends, apiErr.Message)
		case "blocked":
			return fmt.Errorf("%w: %s", ErrBlocked, apiErr.Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("backend error (%d): %s", resp.StatusCode, apiErr.Message)
		}
	}
	return fmt.Errorf("backend error (%d)", resp.StatusCode)
}
