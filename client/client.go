// Package client talks to a toolstream server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/petal-labs/toolstream/server"
	"github.com/petal-labs/toolstream/sse"
	"github.com/petal-labs/toolstream/tool"
)

// DefaultTimeout bounds non-streaming requests.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL string
	// HTTPClient must not set a Timeout if streams are used; stream
	// lifetimes are bounded by the caller's context instead.
	HTTPClient *http.Client
	// Timeout bounds each Health, Discover and Invoke attempt. Zero uses
	// DefaultTimeout.
	Timeout time.Duration
	Retry   RetryPolicy
}

// Client calls the discovery, health, invoke and stream endpoints.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	retry   RetryPolicy
}

// New creates a client for the server at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("client: base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: base URL must be http or https, got %q", raw)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{baseURL: base, http: httpClient, timeout: timeout, retry: cfg.Retry}, nil
}

// APIError is a non-2xx JSON response from the server.
type APIError struct {
	StatusCode int
	ErrorKind  string
	Message    string
	Details    json.RawMessage
}

func (e *APIError) Error() string {
	if e.ErrorKind == "" {
		return fmt.Sprintf("client: server returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("client: %s (status %d): %s", e.ErrorKind, e.StatusCode, e.Message)
}

// Health fetches the server health record.
func (c *Client) Health(ctx context.Context) (server.Health, error) {
	var out server.Health
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Discover lists the tools the server exposes, in registration order.
func (c *Client) Discover(ctx context.Context) ([]server.ToolInfo, error) {
	var out server.ToolList
	if err := c.doJSON(ctx, http.MethodGet, "/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// Invoke calls a single-result tool. input may be raw JSON ([]byte or
// json.RawMessage) or any value that marshals to a JSON object.
func (c *Client) Invoke(ctx context.Context, name string, input any) (tool.Item, error) {
	body, err := encodeInput(input)
	if err != nil {
		return nil, err
	}
	var out tool.Item
	if err := c.doJSON(ctx, http.MethodPost, "/invoke/"+url.PathEscape(name), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stream calls a tool on the streaming endpoint. Rejections before the
// stream opens come back as *APIError. The caller must Close the stream.
func (c *Client) Stream(ctx context.Context, name string, input any) (*EventStream, error) {
	body, err := encodeInput(input)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/stream/"+url.PathEscape(name), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", sse.ContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return &EventStream{
		InvocationID: resp.Header.Get(server.HeaderInvocationID),
		body:         resp.Body,
		reader:       sse.NewReader(resp.Body),
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	if method != http.MethodGet {
		return c.doJSONOnce(ctx, method, path, body, out)
	}
	return doWithRetry(ctx, c.retry, func(ctx context.Context) error {
		return c.doJSONOnce(ctx, method, path, body, out)
	})
}

func (c *Client) doJSONOnce(ctx context.Context, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	endpoint := *c.baseURL
	endpoint.Path += path
	endpoint.RawPath = ""

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func encodeInput(input any) ([]byte, error) {
	switch v := input.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("client: encode input: %w", err)
	}
	return data, nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		ErrorKind string          `json:"error_kind"`
		Message   string          `json:"message"`
		Details   json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.ErrorKind != "" {
		apiErr.ErrorKind = body.ErrorKind
		apiErr.Message = body.Message
		apiErr.Details = body.Details
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(data))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
