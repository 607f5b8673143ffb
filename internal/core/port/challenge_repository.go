package port

import (
	"context"
	"time"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

// ChallengeRepository persists single-use verification challenges.
type ChallengeRepository interface {
	Create(ctx context.Context, challenge domain.Challenge) error
	GetByID(ctx context.Context, id string) (*domain.Challenge, error)
	// Consume atomically sets used_at for an unused, unexpired challenge.
	// It returns repository.ErrNotFound when no row matched, in which case
	// the caller re-reads the challenge to classify the loss as expired,
	// already used, or unknown. Exactly one concurrent caller may win.
	Consume(ctx context.Context, id string, usedAt time.Time) error
	// DeleteFinished removes challenges created before the retention cutoff
	// that are used, or expired as of the caller's reference time, and
	// returns how many rows were purged.
	DeleteFinished(ctx context.Context, createdBefore, now time.Time) (int, error)
}
