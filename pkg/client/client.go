// Package client talks to the radical-faas HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a client for the server at baseURL. Invocations block until the
// workload finishes, so the timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

type FunctionCreate struct {
	Name         string   `json:"name"`
	Runtime      string   `json:"runtime"`
	Handler      string   `json:"handler"`
	Code         string   `json:"code"`
	Dependencies []string `json:"dependencies,omitempty"`
}

type Function struct {
	Name         string    `json:"name"`
	ImageRef     string    `json:"image_ref"`
	Handler      string    `json:"handler"`
	Runtime      string    `json:"runtime"`
	Dependencies []string  `json:"dependencies,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Response   Response
}

func (e *APIError) Error() string {
	if e.Response.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Response.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	return out, c.do(ctx, http.MethodGet, "/", nil, &out)
}

func (c *Client) Deploy(ctx context.Context, fn FunctionCreate) (*Function, error) {
	var resp Response
	if err := c.do(ctx, http.MethodPost, "/api/v1/functions", fn, &resp); err != nil {
		return nil, err
	}
	var out Function
	if err := json.Unmarshal(resp.Details, &out); err != nil {
		return nil, fmt.Errorf("decode deploy details: %w", err)
	}
	return &out, nil
}

// Invoke runs a function and returns its raw JSON result.
func (c *Client) Invoke(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	body := map[string]json.RawMessage{}
	if len(payload) > 0 {
		body["payload"] = payload
	}
	var resp Response
	if err := c.do(ctx, http.MethodPost, "/api/v1/functions/"+url.PathEscape(name)+"/invoke", body, &resp); err != nil {
		return nil, err
	}
	return resp.Details, nil
}

func (c *Client) List(ctx context.Context) ([]Function, error) {
	var out []Function
	return out, c.do(ctx, http.MethodGet, "/api/v1/functions", nil, &out)
}

func (c *Client) Get(ctx context.Context, name string) (*Function, error) {
	var out Function
	if err := c.do(ctx, http.MethodGet, "/api/v1/functions/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/functions/"+url.PathEscape(name), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		b, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(b, &apiErr.Response) != nil {
			apiErr.Response.Message = strings.TrimSpace(string(b))
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
