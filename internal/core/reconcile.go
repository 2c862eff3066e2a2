package core

import (
	"context"
	"time"
)

// StaleAfter is how long a record may sit at processing before the sweep
// treats the provider call as lost. It exceeds the longest provider timeout
// so in-flight work is never reconciled out from under a live request.
const StaleAfter = 5 * time.Minute

// ReconcileStale settles records stuck at processing: the debit is refunded
// and the record marked failed. Safe to run concurrently with live traffic
// because refunds are idempotent per record and terminal states are written
// once. Returns the number of records settled.
func (o *Orchestrator) ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = StaleAfter
	}
	cutoff := o.now().Add(-olderThan)
	stale, err := o.history.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		o.logf("reconcile error: list stale: %v", err)
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	settled := 0
	for _, rec := range stale {
		_, applied, err := o.credits.Refund(ctx, rec.UserID, rec.CreditCost, "Refund: generation timed out", rec.ID)
		if err != nil {
			o.logf("reconcile error user=%s record=%s: refund: %v", rec.UserID, rec.ID, err)
			continue
		}
		o.markFailed(ctx, rec.ID, "timed out waiting for provider")
		if applied {
			o.logf("reconcile settled user=%s record=%s refund=%d", rec.UserID, rec.ID, rec.CreditCost)
		} else {
			o.logf("reconcile settled user=%s record=%s refund=skipped", rec.UserID, rec.ID)
		}
		settled++
	}
	return settled, nil
}
