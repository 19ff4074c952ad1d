// Package client calls a running cbserver over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/dispatcher"
	"github.com/hookdeck/cbserver/internal/naming"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int      `json:"status"`
	Message    string   `json:"message"`
	Data       []string `json:"data,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("cbserver: %d %s (%s)", e.StatusCode, e.Message, strings.Join(e.Data, "; "))
	}
	return fmt.Sprintf("cbserver: %d %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New returns a client for the server at baseURL. Shutdown blocks until the
// server has drained, so the default HTTP client has no timeout; bound calls
// with ctx instead.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve looks name up in the registry and returns a client for the bound
// address.
func Resolve(ctx context.Context, registry naming.Registry, name string, opts ...Option) (*Client, error) {
	parsed, err := naming.ParseName(name)
	if err != nil {
		return nil, err
	}
	address, err := registry.Resolve(ctx, parsed)
	if err != nil {
		return nil, err
	}
	return New(address, opts...), nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Deliver asks the server to call ref once with message.
func (c *Client) Deliver(ctx context.Context, ref callback.Ref, message string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/deliver", map[string]interface{}{
		"callback": ref,
		"message":  message,
	}, nil)
}

// Register asks the server to call ref with message every periodSeconds
// until it shuts down.
func (c *Client) Register(ctx context.Context, ref callback.Ref, message string, periodSeconds int) error {
	return c.do(ctx, http.MethodPost, "/api/v1/register", map[string]interface{}{
		"callback":       ref,
		"message":        message,
		"period_seconds": periodSeconds,
	}, nil)
}

// Shutdown returns once every periodic worker on the server has exited.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/shutdown", nil, nil)
}

func (c *Client) Stats(ctx context.Context) (dispatcher.Stats, error) {
	var stats dispatcher.Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats)
	return stats, err
}

// WaitReady polls the health endpoint until it answers 200 or ctx ends.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
