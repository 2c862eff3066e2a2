package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/strandlabs/hairstyle-gateway/internal/provider"
)

func testImage() provider.Image {
	return provider.Image{MimeType: "image/jpeg", Data: []byte("fake-jpeg")}
}

func TestNewRequiresCredential(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestEditReturnsFirstImagePart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash-exp:generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key not passed")
		}
		var req struct {
			Contents []struct {
				Parts []part `json:"parts"`
			} `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("expected prompt and inline image parts, got %+v", req)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[
			{"text":"here you go"},
			{"inline_data":{"mime_type":"image/png","data":"b3V0"}}
		]}}]}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Edit(context.Background(), testImage(), "wavy blonde")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if out != "data:image/png;base64,b3V0" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestEditErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exhausted"}}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Edit(context.Background(), testImage(), "pink bangs")
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestEditNoImageInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"sorry, text only"}]}}]}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Edit(context.Background(), testImage(), "platinum buzz")
	if err == nil || !strings.Contains(err.Error(), "no image") {
		t.Fatalf("expected missing image error, got %v", err)
	}
}

func TestEditNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Edit(context.Background(), testImage(), "blue-purple highlights")
	if err == nil || !strings.Contains(err.Error(), "no results") {
		t.Fatalf("expected no results error, got %v", err)
	}
}
