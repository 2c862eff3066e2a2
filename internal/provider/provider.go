package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ImageEditProvider edits a portrait according to a hairstyle prompt and
// returns the result as a base64 data URL (or a plain https URL when the
// upstream only hands back a reference).
type ImageEditProvider interface {
	Name() string
	Edit(ctx context.Context, image Image, prompt string) (string, error)
}

// Image is a decoded input image.
type Image struct {
	MimeType string
	Data     []byte
}

// DataURL re-encodes the image as a base64 data URL.
func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MimeType, i.Base64())
}

// Base64 returns the standard-encoded payload without the data URL wrapper.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

var dataURLPattern = regexp.MustCompile(`^data:([^;]+);base64,(.+)$`)

// ParseDataURL decodes a base64 data URL into an Image.
func ParseDataURL(s string) (Image, error) {
	m := dataURLPattern.FindStringSubmatch(s)
	if m == nil {
		return Image{}, errors.New("invalid data URL format")
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return Image{}, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return Image{MimeType: m[1], Data: data}, nil
}

// EncodedSize estimates the decoded byte size of a base64 data URL without
// decoding it.
func EncodedSize(dataURL string) int64 {
	if idx := strings.Index(dataURL, ";base64,"); idx >= 0 {
		dataURL = dataURL[idx+len(";base64,"):]
	}
	return int64(len(dataURL)) * 3 / 4
}

// BuildEditPrompt wraps the user's free-text prompt with the style-preserving
// instruction: edit hair only, keep everything else from the original shot.
func BuildEditPrompt(userPrompt string) string {
	return fmt.Sprintf(`Change ONLY the hair. %s

Keep everything else exactly as in the original: face, skin tone, lighting, background, clothing, expression, pose.

Photorealistic, professional quality, natural lighting, high detail.`, userPrompt)
}

// FirstConfigured returns the first non-nil provider in preference order.
// Callers pass nil for providers whose credential is not configured.
func FirstConfigured(providers ...ImageEditProvider) (ImageEditProvider, error) {
	for _, p := range providers {
		if p != nil {
			return p, nil
		}
	}
	return nil, errors.New("no image edit provider configured")
}
