// Package kvstore is a client for Redis-compatible key-value stores exposed
// over a REST API (Upstash style): each command is POSTed as a JSON array
// and answered with {"result": ...}.
package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client communicates with the key-value REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type commandResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Do runs one command and returns its raw result.
func (c *Client) Do(ctx context.Context, args ...any) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", args[0], err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out commandResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%v: status %d: %s", args[0], resp.StatusCode, truncate(string(respBody), 200))
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%v: %s", args[0], out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%v: status %d", args[0], resp.StatusCode)
	}
	return out.Result, nil
}

// Incr increments key and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	raw, err := c.Do(ctx, "INCR", key)
	if err != nil {
		return 0, err
	}
	return parseInt(raw)
}

// Get returns the integer stored at key, or zero when it is missing.
func (c *Client) Get(ctx context.Context, key string) (int64, error) {
	raw, err := c.Do(ctx, "GET", key)
	if err != nil {
		return 0, err
	}
	return parseInt(raw)
}

// MGet returns the integers stored at keys, zero for missing keys.
func (c *Client) MGet(ctx context.Context, keys []string) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, "MGET")
	for _, k := range keys {
		args = append(args, k)
	}
	raw, err := c.Do(ctx, args...)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode mget: %w", err)
	}
	out := make([]int64, len(keys))
	for i := range keys {
		if i >= len(items) {
			break
		}
		n, err := parseInt(items[i])
		if err != nil {
			return nil, fmt.Errorf("mget %s: %w", keys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

// MarkSeen sets key with an expiry only if it does not exist, reporting
// whether it was set.
func (c *Client) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	raw, err := c.Do(ctx, "SET", key, "1", "NX", "EX", secs)
	if err != nil {
		return false, err
	}
	return string(raw) != "null" && len(raw) > 0, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, "PING")
	return err
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// parseInt accepts a JSON number, a numeric string or null.
func parseInt(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, fmt.Errorf("decode value: %w", err)
		}
		s = str
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", truncate(s, 40))
	}
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
