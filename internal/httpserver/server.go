// Package httpserver exposes the REST endpoints of the hairstyle gateway.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strandlabs/hairstyle-gateway/internal/auth"
	"github.com/strandlabs/hairstyle-gateway/internal/core"
	"github.com/strandlabs/hairstyle-gateway/internal/credits"
	"github.com/strandlabs/hairstyle-gateway/internal/history"
	"github.com/strandlabs/hairstyle-gateway/internal/styles"
)

// DefaultMaxBodyBytes caps the generate request body. The 10MB image limit
// grows by a third under base64 plus JSON overhead.
const DefaultMaxBodyBytes int64 = 15 << 20

// Generator describes the orchestrator methods required by the HTTP layer.
type Generator interface {
	Generate(ctx context.Context, user *auth.User, req core.GenerateRequest) (*core.GenerateResult, error)
}

// Server holds the handler dependencies.
type Server struct {
	generator     Generator
	credits       credits.Store
	history       history.Store
	verifier      auth.Verifier
	catalog       *styles.Catalog
	webhookSecret string
	maxBodyBytes  int64
	logger        *log.Logger
}

// New constructs a Server with the required dependencies.
func New(generator Generator, creditStore credits.Store, historyStore history.Store, verifier auth.Verifier, catalog *styles.Catalog, webhookSecret string) *Server {
	return &Server{
		generator:     generator,
		credits:       creditStore,
		history:       historyStore,
		verifier:      verifier,
		catalog:       catalog,
		webhookSecret: webhookSecret,
		maxBodyBytes:  DefaultMaxBodyBytes,
		logger:        log.New(log.Writer(), "[http] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (s *Server) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Router assembles the REST routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(session chi.Router) {
			session.Use(s.sessionMiddleware)
			session.Post("/hairstyle/generate", s.handleGenerate)
			session.Get("/hairstyle/history", s.handleGenerationHistory)
			session.Get("/credits/balance", s.handleBalance)
			session.Get("/credits/history", s.handleCreditHistory)
		})
		api.Get("/hairstyle/styles", s.handleStyles)
		api.Post("/credits/signup-bonus", s.handleSignupBonus)
	})

	return r
}

type ctxKey int

const userCtxKey ctxKey = iota

// sessionMiddleware resolves the caller once per request. Anonymous callers
// pass through with a nil user; handlers that need an account use
// requireUser.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.verifier.AuthUser(r.Context(), r)
		if err != nil {
			s.logf("session lookup failed, treating as anonymous: %v", err)
			user = nil
		}
		ctx := context.WithValue(r.Context(), userCtxKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userCtxKey).(*auth.User)
	return user
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) *auth.User {
	user := userFrom(r.Context())
	if user == nil {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
	}
	return user
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}
