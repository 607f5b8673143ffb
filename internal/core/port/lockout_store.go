package port

import (
	"context"
	"time"
)

// FailureOutcome reports the ledger state after recording a failed attempt.
type FailureOutcome struct {
	Failures    int
	Locked      bool
	LockedUntil time.Time
}

// LockoutStore tracks per-identity consecutive failures and lock state.
// RecordFailure must be atomic per identity: two near-simultaneous failures
// at the threshold boundary may not both observe the pre-increment counter.
type LockoutStore interface {
	RecordFailure(ctx context.Context, identityID string, maxFailures int, lockFor time.Duration) (FailureOutcome, error)
	ResetFailures(ctx context.Context, identityID string) error
	IsLocked(ctx context.Context, identityID string) (bool, time.Time, error)
}
