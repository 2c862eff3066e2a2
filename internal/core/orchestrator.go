// Package core coordinates one hairstyle generation: validate the request,
// debit the caller's credits, call the image-edit provider and settle the
// ledger afterwards. Credits are reserved before the provider call and paid
// back when the provider fails.
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/strandlabs/hairstyle-gateway/internal/auth"
	"github.com/strandlabs/hairstyle-gateway/internal/credits"
	"github.com/strandlabs/hairstyle-gateway/internal/history"
	"github.com/strandlabs/hairstyle-gateway/internal/provider"
)

const (
	// GenerationCost is the flat price of one generation attempt.
	GenerationCost int64 = 1
	// InitialCredits is the signup bonus granted once per account.
	InitialCredits int64 = 3
	// MaxPromptLen bounds the user's free-text prompt.
	MaxPromptLen = 500
	// MaxImageBytes bounds the decoded input image size.
	MaxImageBytes int64 = 10 << 20

	refundDescriptionMax = 80
)

// GenerateRequest is one edit request after transport decoding.
type GenerateRequest struct {
	Prompt       string
	ImageDataURL string
}

// GenerateResult is a successful edit. Balance is nil for anonymous callers,
// whose requests never touch the ledger.
type GenerateResult struct {
	Image            string
	Provider         string
	RecordID         string
	ProcessingTimeMs int64
	Balance          *int64
}

// Orchestrator runs the debit-generate-settle sequence.
type Orchestrator struct {
	credits  credits.Store
	history  history.Store
	provider provider.ImageEditProvider
	logger   *log.Logger
	now      func() time.Time
}

// NewOrchestrator wires the orchestrator to its stores and provider.
func NewOrchestrator(creditStore credits.Store, historyStore history.Store, p provider.ImageEditProvider) *Orchestrator {
	return &Orchestrator{
		credits:  creditStore,
		history:  historyStore,
		provider: p,
		logger:   log.New(log.Writer(), "[core] ", log.LstdFlags|log.Lmicroseconds),
		now:      time.Now,
	}
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (o *Orchestrator) SetLogger(logger *log.Logger) {
	if logger != nil {
		o.logger = logger
	}
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}

// Generate validates req, charges the caller and runs the provider edit.
// Anonymous callers (nil user) get the edit without any ledger or history
// writes; the client enforces their trial ceiling.
func (o *Orchestrator) Generate(ctx context.Context, user *auth.User, req GenerateRequest) (*GenerateResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, &ValidationError{Field: "prompt", Message: "prompt is required"}
	}
	if len(prompt) > MaxPromptLen {
		return nil, &ValidationError{Field: "prompt", Message: fmt.Sprintf("prompt exceeds %d characters", MaxPromptLen)}
	}
	if req.ImageDataURL == "" {
		return nil, &ValidationError{Field: "image", Message: "image is required"}
	}
	if provider.EncodedSize(req.ImageDataURL) > MaxImageBytes {
		return nil, &ValidationError{Field: "image", Message: "image exceeds 10MB"}
	}
	img, err := provider.ParseDataURL(req.ImageDataURL)
	if err != nil {
		return nil, &ValidationError{Field: "image", Message: "image must be a base64 data URL"}
	}

	if user == nil {
		return o.generateAnonymous(ctx, img, prompt)
	}
	return o.generateCharged(ctx, user, img, prompt)
}

func (o *Orchestrator) generateAnonymous(ctx context.Context, img provider.Image, prompt string) (*GenerateResult, error) {
	o.logf("generate start user=anonymous provider=%s", o.provider.Name())
	started := o.now()
	out, err := o.provider.Edit(ctx, img, prompt)
	elapsed := o.now().Sub(started).Milliseconds()
	if err != nil {
		o.logf("generate error user=anonymous elapsed_ms=%d: %v", elapsed, err)
		return nil, &ProviderError{Provider: o.provider.Name(), Err: err}
	}
	o.logf("generate success user=anonymous elapsed_ms=%d", elapsed)
	return &GenerateResult{
		Image:            out,
		Provider:         o.provider.Name(),
		ProcessingTimeMs: elapsed,
	}, nil
}

func (o *Orchestrator) generateCharged(ctx context.Context, user *auth.User, img provider.Image, prompt string) (*GenerateResult, error) {
	// Advisory affordability check. The debit below is the authoritative one;
	// this avoids creating a record for callers who plainly cannot pay.
	balance, err := o.credits.Balance(ctx, user.ID)
	if err != nil {
		o.logf("generate error user=%s: read balance: %v", user.ID, err)
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance < GenerationCost {
		o.logf("generate rejected user=%s balance=%d", user.ID, balance)
		return nil, &InsufficientCreditsError{Balance: balance}
	}

	recordID, err := o.history.Create(ctx, user.ID, prompt, GenerationCost)
	if err != nil {
		o.logf("generate error user=%s: create record: %v", user.ID, err)
		return nil, fmt.Errorf("create generation record: %w", err)
	}
	o.logf("generate start user=%s record=%s provider=%s", user.ID, recordID, o.provider.Name())

	description := credits.Truncate("Hairstyle generation: "+prompt, credits.DescriptionMaxLen)
	if _, err := o.credits.Debit(ctx, user.ID, GenerationCost, description, recordID); err != nil {
		if errors.Is(err, credits.ErrInsufficientFunds) {
			o.markFailed(ctx, recordID, "insufficient credits")
			balance, berr := o.credits.Balance(ctx, user.ID)
			if berr != nil {
				o.logf("generate user=%s record=%s: balance after failed debit: %v", user.ID, recordID, berr)
				balance = 0
			}
			o.logf("generate rejected user=%s record=%s balance=%d", user.ID, recordID, balance)
			return nil, &InsufficientCreditsError{Balance: balance}
		}
		o.markFailed(ctx, recordID, "credit debit failed")
		o.logf("generate error user=%s record=%s: debit: %v", user.ID, recordID, err)
		return nil, fmt.Errorf("debit credits: %w", err)
	}

	started := o.now()
	out, err := o.provider.Edit(ctx, img, prompt)
	elapsed := o.now().Sub(started).Milliseconds()
	if err != nil {
		o.refund(ctx, user.ID, recordID, err)
		o.markFailed(ctx, recordID, err.Error())
		o.logf("generate error user=%s record=%s elapsed_ms=%d: %v", user.ID, recordID, elapsed, err)
		return nil, &ProviderError{Provider: o.provider.Name(), Err: err}
	}

	if err := o.history.MarkCompleted(ctx, recordID, o.provider.Name(), elapsed); err != nil {
		o.logf("generate user=%s record=%s: mark completed: %v", user.ID, recordID, err)
	}

	balance, err = o.credits.Balance(ctx, user.ID)
	if err != nil {
		o.logf("generate user=%s record=%s: balance after success: %v", user.ID, recordID, err)
		balance = 0
	}
	o.logf("generate success user=%s record=%s elapsed_ms=%d balance=%d", user.ID, recordID, elapsed, balance)
	return &GenerateResult{
		Image:            out,
		Provider:         o.provider.Name(),
		RecordID:         recordID,
		ProcessingTimeMs: elapsed,
		Balance:          &balance,
	}, nil
}

// refund pays the debit back after a provider failure. Best effort: the
// caller's error is the provider failure either way, and the reconciliation
// sweep picks up anything missed here.
func (o *Orchestrator) refund(ctx context.Context, userID, recordID string, cause error) {
	description := credits.Truncate("Refund: "+cause.Error(), refundDescriptionMax)
	_, applied, err := o.credits.Refund(ctx, userID, GenerationCost, description, recordID)
	switch {
	case err != nil:
		o.logf("refund error user=%s record=%s: %v", userID, recordID, err)
	case !applied:
		o.logf("refund skipped user=%s record=%s: already applied", userID, recordID)
	default:
		o.logf("refund applied user=%s record=%s amount=%d", userID, recordID, GenerationCost)
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, recordID, reason string) {
	if err := o.history.MarkFailed(ctx, recordID, reason); err != nil {
		o.logf("mark failed record=%s: %v", recordID, err)
	}
}
