// Package userinfo calls the identity provider's OIDC user-info endpoint.
package userinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"identity-sync/internal/identity/domain"
)

const defaultTimeout = 10 * time.Second

// maxBody bounds how much of a provider response is read.
const maxBody = 1 << 20

// FetchError is returned when the provider is unreachable, answers non-2xx, or sends an unusable body.
// StatusCode is 0 when no response was received.
type FetchError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("userinfo: %s", e.Message)
	}
	return fmt.Sprintf("userinfo: status=%d: %s", e.StatusCode, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches profiles from a user-info endpoint. Responses are never cached.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// NewClient returns a client for url with the given timeout (10s if zero).
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// FetchProfile issues one GET with accessToken as bearer credential. Does not log the token.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*domain.ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, &FetchError{Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &FetchError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: "read body", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: upstreamMessage(resp.StatusCode, body)}
	}

	var profile domain.ExternalIdentity
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: "malformed profile", Err: err}
	}
	if profile.Subject == "" {
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: "profile has no sub"}
	}
	profile.Email = strings.TrimSpace(profile.Email)
	return &profile, nil
}

// upstreamMessage extracts the provider's error text, falling back to the status text.
func upstreamMessage(status int, body []byte) string {
	var e struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
		Message     string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.Description != "":
			return e.Description
		case e.Message != "":
			return e.Message
		case e.Error != "":
			return e.Error
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		return s
	}
	return http.StatusText(status)
}
