package provider

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestParseDataURLRoundTrip(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	img, err := ParseDataURL(url)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	if img.MimeType != "image/png" {
		t.Fatalf("unexpected mime type %q", img.MimeType)
	}
	if string(img.Data) != string(payload) {
		t.Fatalf("payload mismatch")
	}
	if img.DataURL() != url {
		t.Fatalf("round trip mismatch: %q", img.DataURL())
	}
}

func TestParseDataURLRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not a url", "data:image/png,plain", "data:;base64,abc"} {
		if _, err := ParseDataURL(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestEncodedSize(t *testing.T) {
	payload := make([]byte, 3000)
	url := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(payload)
	if got := EncodedSize(url); got != 3000 {
		t.Fatalf("expected 3000, got %d", got)
	}
}

func TestBuildEditPromptWrapsUserText(t *testing.T) {
	out := BuildEditPrompt("short pink hair")
	if !strings.Contains(out, "Change ONLY the hair. short pink hair") {
		t.Fatalf("user prompt not embedded: %q", out)
	}
	if !strings.Contains(out, "face, skin tone, lighting, background") {
		t.Fatalf("preservation clause missing: %q", out)
	}
}

func TestFirstConfigured(t *testing.T) {
	if _, err := FirstConfigured(nil, nil); err == nil {
		t.Fatalf("expected error with no providers")
	}
}
