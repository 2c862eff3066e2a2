package httpblob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client implements blob.Store against a bearer-authenticated blob service
// (Vercel Blob style): PUT /{pathname} uploads and returns the public URL,
// POST /delete removes previously uploaded URLs.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the blob client.
type Config struct {
	Token          string
	BaseURL        string // optional, defaults to https://blob.vercel-storage.com
	RequestTimeout time.Duration
}

// New creates a blob Client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("httpblob: token required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://blob.vercel-storage.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		token:   cfg.Token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Put uploads data under a generated name and returns the public URL.
func (c *Client) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	pathname := fmt.Sprintf("hairstyle-input-%s%s", uuid.NewString(), extensionFor(contentType))
	url := fmt.Sprintf("%s/%s", c.baseURL, pathname)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("httpblob: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Content-Type", contentType)
	req.Header.Set("X-Access", "public")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("httpblob: upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("httpblob: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("httpblob: upload http %d: %s", resp.StatusCode, string(body))
	}

	var uploaded struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return "", fmt.Errorf("httpblob: decode response: %w", err)
	}
	if uploaded.URL == "" {
		// Some deployments echo nothing; the deterministic path is the URL.
		return url, nil
	}
	return uploaded.URL, nil
}

// Delete removes a staged object by URL.
func (c *Client) Delete(ctx context.Context, url string) error {
	payload, err := json.Marshal(map[string][]string{"urls": {url}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/delete", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("httpblob: create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpblob: delete: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("httpblob: delete http %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func extensionFor(contentType string) string {
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".png"
}
