package wavespeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/strandlabs/hairstyle-gateway/internal/blob"
	"github.com/strandlabs/hairstyle-gateway/internal/provider"
)

// Provider submits edit tasks to the WaveSpeed image API. The API consumes
// image URLs, so the input is staged at a public blob first; if the submit
// response is not synchronously complete, the task result endpoint is polled
// on a fixed interval up to a bounded number of attempts.
type Provider struct {
	apiKey       string
	baseURL      string
	blobs        blob.Store
	pollInterval time.Duration
	maxAttempts  int
	httpClient   *http.Client
}

// Config holds configuration for the WaveSpeed provider.
type Config struct {
	APIKey          string
	BaseURL         string // optional, defaults to https://api.wavespeed.ai/api/v3
	Blobs           blob.Store
	PollInterval    time.Duration // default 2s
	MaxPollAttempts int           // default 60 (~120s ceiling)
	RequestTimeout  time.Duration
}

// New creates a WaveSpeed provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("wavespeed: api key required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("wavespeed: blob store required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.wavespeed.ai/api/v3"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 2 * time.Second
	}
	maxAttempts := cfg.MaxPollAttempts
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Provider{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		blobs:        cfg.Blobs,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name identifies the provider in generation records.
func (p *Provider) Name() string { return "wavespeed" }

type taskData struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Outputs       []string `json:"outputs,omitempty"`
	Base64Outputs []string `json:"base64_outputs,omitempty"`
}

type taskResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    taskData `json:"data"`
}

// Edit stages the image, submits an edit task and waits for its output.
func (p *Provider) Edit(ctx context.Context, image provider.Image, prompt string) (string, error) {
	imageURL, err := p.blobs.Put(ctx, image.Data, image.MimeType)
	if err != nil {
		return "", fmt.Errorf("wavespeed: stage input image: %w", err)
	}
	// The staged object belongs to this request alone; drop it on every exit
	// path. Deletion is fire-and-forget and must survive a cancelled ctx.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.blobs.Delete(cleanupCtx, imageURL)
	}()

	submitted, err := p.submit(ctx, imageURL, provider.BuildEditPrompt(prompt))
	if err != nil {
		return "", err
	}
	if submitted.Status == "completed" {
		return outputFrom(submitted)
	}
	return p.poll(ctx, submitted.ID)
}

func (p *Provider) submit(ctx context.Context, imageURL, fullPrompt string) (taskData, error) {
	payload, err := json.Marshal(map[string]any{
		"prompt":               fullPrompt,
		"images":               []string{imageURL},
		"resolution":           "1k",
		"output_format":        "png",
		"enable_sync_mode":     true,
		"enable_base64_output": true,
	})
	if err != nil {
		return taskData{}, err
	}

	resp, err := p.doJSON(ctx, http.MethodPost, p.baseURL+"/google/nano-banana-pro/edit", payload)
	if err != nil {
		return taskData{}, fmt.Errorf("wavespeed: submit: %w", err)
	}
	if resp.Code != http.StatusOK {
		return taskData{}, fmt.Errorf("wavespeed: api error: %s", resp.Message)
	}
	return resp.Data, nil
}

func (p *Provider) poll(ctx context.Context, taskID string) (string, error) {
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.pollInterval):
		}

		resp, err := p.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/predictions/%s/result", p.baseURL, taskID), nil)
		if err != nil {
			return "", fmt.Errorf("wavespeed: poll: %w", err)
		}

		switch resp.Data.Status {
		case "completed":
			return outputFrom(resp.Data)
		case "failed":
			return "", errors.New("wavespeed: image generation failed on the server")
		}
	}
	return "", errors.New("wavespeed: timeout waiting for image generation result")
}

func (p *Provider) doJSON(ctx context.Context, method, url string, body []byte) (taskResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return taskResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return taskResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return taskResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return taskResponse{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed taskResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return taskResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return parsed, nil
}

// outputFrom prefers inline base64 output over a referenced URL.
func outputFrom(data taskData) (string, error) {
	if len(data.Base64Outputs) > 0 {
		return "data:image/png;base64," + data.Base64Outputs[0], nil
	}
	if len(data.Outputs) > 0 {
		return data.Outputs[0], nil
	}
	return "", errors.New("wavespeed: task completed but no image output found")
}
