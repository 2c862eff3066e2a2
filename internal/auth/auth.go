// Package auth verifies browser sessions against the external auth service.
// The gateway never mints sessions itself; it forwards the caller's cookies
// and bearer token and trusts the auth service's answer.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// User is an authenticated account as reported by the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Verifier resolves the user behind an incoming request. A nil user with a
// nil error means the request is anonymous.
type Verifier interface {
	AuthUser(ctx context.Context, r *http.Request) (*User, error)
}

// Client talks to the auth service's session endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the auth client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// New creates an auth client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("auth: base url required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type sessionResponse struct {
	User *User `json:"user"`
}

// AuthUser asks the auth service who owns the session attached to r. Requests
// with no session cookie and no bearer token resolve to anonymous without a
// network round trip.
func (c *Client) AuthUser(ctx context.Context, r *http.Request) (*User, error) {
	cookie := r.Header.Get("Cookie")
	bearer := r.Header.Get("Authorization")
	if cookie == "" && bearer == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/session", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: create request: %w", err)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: session lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth: session lookup http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("auth: decode session: %w", err)
	}
	if parsed.User == nil || parsed.User.ID == "" {
		return nil, nil
	}
	return parsed.User, nil
}
