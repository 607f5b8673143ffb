package domain

import "time"

// Challenge is a single-use, time-bounded authorization to present one phrase
// for one identity (or anonymously during enrollment of a new identity).
//
// State machine: created -> used (terminal) or created -> expired (terminal,
// implicit by time). UsedAt transitions exactly once from nil to a timestamp
// and never back, which is what enforces anti-replay.
type Challenge struct {
	ID         string
	IdentityID *string
	PhraseID   string
	PhraseText string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
}

// Expired reports whether the challenge TTL elapsed before the reference time.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Used reports whether the challenge has already been consumed.
func (c Challenge) Used() bool {
	return c.UsedAt != nil
}
