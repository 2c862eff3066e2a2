package core

import "fmt"

// ValidationError reports request input that fails validation before any
// ledger or provider work happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InsufficientCreditsError is returned when the debit loses the race or the
// balance is simply too low. Balance is the balance observed after the
// failed debit.
type InsufficientCreditsError struct {
	Balance int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits (balance %d)", e.Balance)
}

// ProviderError wraps an upstream image-edit failure. The caller's credits
// have already been refunded (or queued for reconciliation) by the time this
// is returned.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
