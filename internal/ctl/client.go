// Package ctl implements the perksctl command line client. It talks to a
// running perksd over the account's Unix domain socket.
package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/perkshq/perks/internal/cache"
)

// Client is an HTTP client pinned to a daemon socket. The host in request
// URLs is a placeholder; the transport always dials the socket.
type Client struct {
	httpc *http.Client
}

// NewClient creates a client for the daemon listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		httpc: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// StatusInfo is the daemon status snapshot.
type StatusInfo struct {
	State   string `json:"state"`
	Online  bool   `json:"online"`
	Pending int    `json:"pending"`
	Failed  int    `json:"failed"`
}

func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	var out StatusInfo
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetNetwork(ctx context.Context, online bool) error {
	return c.do(ctx, http.MethodPost, "/v1/network", map[string]bool{"online": online}, nil)
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/refresh", nil, nil)
}

func (c *Client) Conversations(ctx context.Context) ([]cache.Conversation, error) {
	var out []cache.Conversation
	if err := c.do(ctx, http.MethodGet, "/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Messages(ctx context.Context, conversationID string) ([]cache.Message, error) {
	var out []cache.Message
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Send(ctx context.Context, conversationID, body string) (*cache.QueuedSend, error) {
	var out cache.QueuedSend
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Queue(ctx context.Context) ([]cache.QueuedSend, error) {
	var out []cache.QueuedSend
	if err := c.do(ctx, http.MethodGet, "/v1/queue", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Retry(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/v1/queue/retry", map[string]string{"key": key}, nil)
}

func (c *Client) Businesses(ctx context.Context) ([]cache.Business, error) {
	var out []cache.Business
	if err := c.do(ctx, http.MethodGet, "/v1/businesses", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Search(ctx context.Context, query, conversationID string) ([]cache.SearchResult, error) {
	q := url.Values{"q": {query}}
	if conversationID != "" {
		q.Set("conversation", conversationID)
	}
	var out []cache.SearchResult
	if err := c.do(ctx, http.MethodGet, "/v1/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context) (*cache.Stats, error) {
	var out cache.Stats
	if err := c.do(ctx, http.MethodGet, "/v1/cache/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ClearConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/conversations/"+url.PathEscape(conversationID)+"/cache", nil, nil)
}

func (c *Client) ClearCache(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/cache", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://perksd"+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
