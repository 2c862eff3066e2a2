package gemini

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

	"github.com/strandlabs/hairstyle-gateway/internal/provider"
)

// Provider edits images through Gemini's generateContent endpoint in a single
// synchronous call with the image inlined in the request.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Config holds configuration for the Gemini provider.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://generativelanguage.googleapis.com
	Model          string // optional, defaults to gemini-2.0-flash-exp
	RequestTimeout time.Duration
}

// New creates a Gemini provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash-exp"
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name identifies the provider in generation records.
func (p *Provider) Name() string { return "gemini" }

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Edit sends one generateContent call and extracts the first image part.
func (p *Provider) Edit(ctx context.Context, image provider.Image, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{
				"parts": []part{
					{Text: provider.BuildEditPrompt(prompt)},
					{InlineData: &inlineData{MimeType: image.MimeType, Data: image.Base64()}},
				},
			},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"TEXT", "IMAGE"},
		},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("gemini: http %d: %s", resp.StatusCode, string(respBody))
		}
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("gemini: api error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: http %d: %s", resp.StatusCode, string(respBody))
	}
	if len(parsed.Candidates) == 0 {
		return "", errors.New("gemini: no results generated")
	}

	for _, pt := range parsed.Candidates[0].Content.Parts {
		if pt.InlineData != nil {
			return fmt.Sprintf("data:%s;base64,%s", pt.InlineData.MimeType, pt.InlineData.Data), nil
		}
	}
	return "", errors.New("gemini: no image in response")
}
