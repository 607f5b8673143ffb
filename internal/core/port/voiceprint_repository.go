package port

import (
	"context"
	"time"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

// VoiceprintRepository manages the current template and its append-only
// history. Replace must move any existing current voiceprint to history
// before overwriting it, inside one transaction, so the singularity invariant
// (zero or one current voiceprint per identity) holds at every instant.
type VoiceprintRepository interface {
	GetCurrent(ctx context.Context, identityID string) (*domain.Voiceprint, error)
	Replace(ctx context.Context, voiceprint domain.Voiceprint, sessionID string) error
	History(ctx context.Context, identityID string) ([]domain.VoiceprintHistoryEntry, error)
}

// SampleRepository persists accepted enrollment samples.
type SampleRepository interface {
	Create(ctx context.Context, sample domain.EnrollmentSample) error
	ListBySession(ctx context.Context, sessionID string) ([]domain.EnrollmentSample, error)
	// DeleteOrphaned purges samples that were never aggregated into a
	// voiceprint and whose session has long expired.
	DeleteOrphaned(ctx context.Context, createdBefore time.Time) (int, error)
}
