package credits

import (
	"context"
	"errors"
	"time"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TypeGeneration      TransactionType = "generation"
	TypeRefund          TransactionType = "refund"
	TypePurchase        TransactionType = "purchase"
	TypeSignupBonus     TransactionType = "signup_bonus"
	TypeAdminAdjustment TransactionType = "admin_adjustment"
)

// ErrInsufficientFunds is returned by Debit when the balance cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient credits")

// Transaction is an append-only ledger entry. Negative amounts are debits,
// positive amounts are credits. The sum of a user's transactions always equals
// the current balance row.
type Transaction struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      int64           `json:"amount"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	ReferenceID string          `json:"reference_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DescriptionMaxLen bounds free-text descriptions stored with a transaction.
const DescriptionMaxLen = 255

// Store persists credit balances and their transaction history.
//
// Debit must be atomic: a single conditional update that only applies when the
// current balance covers the amount. Two concurrent debits against one remaining
// credit must result in exactly one success and one ErrInsufficientFunds.
type Store interface {
	// Balance returns the current balance, 0 when no row exists.
	Balance(ctx context.Context, userID string) (int64, error)
	// Debit subtracts amount and appends a generation transaction, returning the
	// new balance. Returns ErrInsufficientFunds (and writes nothing) when the
	// balance cannot cover the amount.
	Debit(ctx context.Context, userID string, amount int64, description, referenceID string) (int64, error)
	// Credit adds amount unconditionally, creating the balance row when absent,
	// and appends a matching transaction. Returns the new balance.
	Credit(ctx context.Context, userID string, amount int64, typ TransactionType, description, referenceID string) (int64, error)
	// Refund credits amount back for the given generation record. At most one
	// refund is ever applied per reference; repeated calls report applied=false.
	Refund(ctx context.Context, userID string, amount int64, description, referenceID string) (balance int64, applied bool, err error)
	// GrantSignupBonus credits the signup bonus at most once per user.
	GrantSignupBonus(ctx context.Context, userID string, amount int64) (balance int64, granted bool, err error)
	// ListTransactions returns entries newest first. limit is clamped to 100.
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error)
	Close() error
}

// Truncate bounds s to max bytes for storage in descriptions and error columns.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
