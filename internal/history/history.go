package history

import (
	"context"
	"time"
)

// Status tracks the lifecycle of a generation attempt.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrorMessageMaxLen bounds the failure reason stored with a record.
const ErrorMessageMaxLen = 500

// Record is one generation attempt by an authenticated user. A record is
// created at processing before the ledger debit; the terminal state is written
// exactly once.
type Record struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Prompt           string     `json:"prompt"`
	Status           Status     `json:"status"`
	Provider         string     `json:"provider,omitempty"`
	CreditCost       int64      `json:"credit_cost"`
	ProcessingTimeMs int64      `json:"processing_time_ms,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Store is the append-only audit log of generation attempts. Record lifecycle
// is independent of the credit ledger: a record must reach a terminal state
// even when the subsequent ledger reconciliation fails.
type Store interface {
	// Create inserts a record at status processing and returns its id.
	Create(ctx context.Context, userID, prompt string, cost int64) (string, error)
	// MarkCompleted writes the terminal completed state with audit timing.
	MarkCompleted(ctx context.Context, id, provider string, elapsedMs int64) error
	// MarkFailed writes the terminal failed state with a truncated reason.
	MarkFailed(ctx context.Context, id, errorMessage string) error
	// ListRecent returns a user's records newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]Record, error)
	// ListStaleProcessing returns records still processing that were created
	// before the cutoff; used by the reconciliation sweep.
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]Record, error)
	Close() error
}
