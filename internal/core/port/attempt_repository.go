package port

import (
	"context"
	"time"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

// AttemptDecision finalizes an undecided attempt. The transition happens
// exactly once; decided rows are immutable afterward.
type AttemptDecision struct {
	Accepted  bool
	Reason    domain.DecisionReason
	Scores    *domain.SignalScores
	Latency   time.Duration
	DecidedAt time.Time
}

// AttemptRepository is the append-only verification attempt ledger.
type AttemptRepository interface {
	Create(ctx context.Context, attempt domain.VerificationAttempt) error
	Decide(ctx context.Context, id string, decision AttemptDecision) error
	GetByID(ctx context.Context, id string) (*domain.VerificationAttempt, error)
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.VerificationAttempt, error)
	// DeleteDecidedBefore purges decided attempts past the retention window.
	DeleteDecidedBefore(ctx context.Context, decidedBefore time.Time) (int, error)
}
