package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without base url")
	}
}

func TestAuthUserForwardsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/session" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Cookie"); got != "session=abc123" {
			t.Errorf("cookie not forwarded, got %q", got)
		}
		_, _ = w.Write([]byte(`{"user":{"id":"user-1","email":"a@example.com","name":"A"}}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/hairstyle/generate", nil)
	req.Header.Set("Cookie", "session=abc123")

	user, err := c.AuthUser(context.Background(), req)
	if err != nil {
		t.Fatalf("AuthUser: %v", err)
	}
	if user == nil || user.ID != "user-1" || user.Email != "a@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestAuthUserNoCredentialsIsAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("auth service should not be called without credentials")
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
	user, err := c.AuthUser(context.Background(), req)
	if err != nil {
		t.Fatalf("AuthUser: %v", err)
	}
	if user != nil {
		t.Fatalf("expected anonymous, got %+v", user)
	}
}

func TestAuthUserRejectedSessionIsAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
	req.Header.Set("Authorization", "Bearer expired")

	user, err := c.AuthUser(context.Background(), req)
	if err != nil {
		t.Fatalf("AuthUser: %v", err)
	}
	if user != nil {
		t.Fatalf("expected anonymous for rejected session, got %+v", user)
	}
}

func TestAuthUserEmptySessionBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
	req.Header.Set("Cookie", "session=stale")

	user, err := c.AuthUser(context.Background(), req)
	if err != nil {
		t.Fatalf("AuthUser: %v", err)
	}
	if user != nil {
		t.Fatalf("expected anonymous for empty session, got %+v", user)
	}
}

func TestAuthUserServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
	req.Header.Set("Cookie", "session=abc")

	if _, err := c.AuthUser(context.Background(), req); err == nil {
		t.Fatalf("expected error when auth service is down")
	}
}
