package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// httpClient is the shared JSON-over-HTTP plumbing of every collaborator client.
type httpClient struct {
	name        string
	apiBase     string
	apiKey      string
	client      *http.Client
	retryConfig RetryConfig
}

func newHTTPClient(name, apiBase, apiKey string) httpClient {
	return httpClient{
		name:        name,
		apiBase:     strings.TrimRight(apiBase, "/"),
		apiKey:      apiKey,
		client:      &http.Client{Timeout: 30 * time.Second},
		retryConfig: DefaultRetryConfig(),
	}
}

// postJSON sends body to path and decodes the response into out.
// Retries apply only when retry is true (the call must be idempotent).
func (c *httpClient) postJSON(ctx context.Context, path string, body, out any, retry bool) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.name, err)
	}
	cfg := c.retryConfig
	if !retry {
		cfg.Attempts = 1
	}
	_, err = RetryDo(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, c.do(ctx, http.MethodPost, path, data, out)
	})
	return err
}

// getJSON fetches path and decodes the response into out.
func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	_, err := RetryDo(ctx, c.retryConfig, func() (struct{}, error) {
		return struct{}{}, c.do(ctx, http.MethodGet, path, nil, out)
	})
	return err
}

func (c *httpClient) do(ctx context.Context, method, path string, data []byte, out any) error {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.name, err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("%s: %s", c.name, string(respBody)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

// Ping checks that the collaborator answers on its health path.
func (c *httpClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
