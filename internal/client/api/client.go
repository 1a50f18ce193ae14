// Package api is the Go client for the backend's /api/user routes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"identity-sync/internal/user/domain"
)

const defaultTimeout = 10 * time.Second

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("api: status=%d: %s", e.StatusCode, e.Message)
}

// SyncResponse is the body of POST /api/user/sync.
type SyncResponse struct {
	User    domain.User `json:"user"`
	Message string      `json:"message"`
}

// ProfileResponse is the body of GET /api/user/profile; User holds the verified token claims.
type ProfileResponse struct {
	User    map[string]interface{} `json:"user"`
	Message string                 `json:"message"`
}

// Client calls the backend with a bearer token.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for the backend at baseURL (e.g. http://localhost:8000).
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Sync asks the backend to mirror the token's identity into its user store.
func (c *Client) Sync(ctx context.Context, accessToken string) (*SyncResponse, error) {
	var out SyncResponse
	if err := c.do(ctx, http.MethodPost, "/api/user/sync", accessToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncUser runs Sync and drops the response; it lets the client serve as the login flow's syncer.
func (c *Client) SyncUser(ctx context.Context, accessToken string) error {
	_, err := c.Sync(ctx, accessToken)
	return err
}

// Profile returns the backend's view of the caller's verified claims.
func (c *Client) Profile(ctx context.Context, accessToken string) (*ProfileResponse, error) {
	var out ProfileResponse
	if err := c.do(ctx, http.MethodGet, "/api/user/profile", accessToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, out interface{}) error {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
