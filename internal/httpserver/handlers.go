package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/strandlabs/hairstyle-gateway/internal/core"
	"github.com/strandlabs/hairstyle-gateway/internal/credits"
	"github.com/strandlabs/hairstyle-gateway/internal/history"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "hairstyle-gateway",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req struct {
		Prompt string `json:"prompt"`
		Image  string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return
		}
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	user := userFrom(r.Context())
	res, err := s.generator.Generate(r.Context(), user, core.GenerateRequest{
		Prompt:       req.Prompt,
		ImageDataURL: req.Image,
	})
	if err != nil {
		var verr *core.ValidationError
		var ierr *core.InsufficientCreditsError
		var perr *core.ProviderError
		switch {
		case errors.As(err, &verr):
			s.respondError(w, http.StatusBadRequest, verr)
		case errors.As(err, &ierr):
			s.respondJSON(w, http.StatusForbidden, map[string]any{
				"success": false,
				"error":   "insufficient credits",
				"credits": ierr.Balance,
			})
		case errors.As(err, &perr):
			s.respondError(w, http.StatusInternalServerError, errors.New("image generation failed"))
		default:
			s.logf("generate: %v", err)
			s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		}
		return
	}

	payload := map[string]any{
		"success":            true,
		"image":              res.Image,
		"provider":           res.Provider,
		"processing_time_ms": res.ProcessingTimeMs,
	}
	if res.RecordID != "" {
		payload["record_id"] = res.RecordID
	}
	if res.Balance != nil {
		payload["credits"] = *res.Balance
	}
	s.respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}
	balance, err := s.credits.Balance(r.Context(), user.ID)
	if err != nil {
		s.logf("balance user=%s: %v", user.ID, err)
		s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "credits": balance})
}

func (s *Server) handleCreditHistory(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	txs, err := s.credits.ListTransactions(r.Context(), user.ID, limit, offset)
	if err != nil {
		s.logf("credit history user=%s: %v", user.ID, err)
		s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	if txs == nil {
		txs = []credits.Transaction{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"limit":        limit,
		"offset":       offset,
	})
}

func (s *Server) handleGenerationHistory(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}
	limit := queryInt(r, "limit", 50)
	records, err := s.history.ListRecent(r.Context(), user.ID, limit)
	if err != nil {
		s.logf("generation history user=%s: %v", user.ID, err)
		s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"styles": s.catalog.All()})
}

// handleSignupBonus is the account-creation webhook from the auth service.
// It is idempotent: replays report granted=false with the current balance.
func (s *Server) handleSignupBonus(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret == "" {
		s.respondError(w, http.StatusNotImplemented, errors.New("webhook disabled"))
		return
	}
	if r.Header.Get("X-Webhook-Secret") != s.webhookSecret {
		s.respondError(w, http.StatusUnauthorized, errors.New("invalid webhook secret"))
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("user_id required"))
		return
	}
	balance, granted, err := s.credits.GrantSignupBonus(r.Context(), userID, core.InitialCredits)
	if err != nil {
		s.logf("signup bonus user=%s: %v", userID, err)
		s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	s.logf("signup bonus user=%s granted=%v balance=%d", userID, granted, balance)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"credits": balance,
		"granted": granted,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
