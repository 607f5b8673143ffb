package port

import (
	"context"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

// PhraseFilter narrows the active phrase pool for selection.
type PhraseFilter struct {
	Language   string
	Difficulty domain.PhraseDifficulty
	ExcludeIDs []string
	Limit      int
}

// PhraseRepository manages the challenge phrase pool.
type PhraseRepository interface {
	Create(ctx context.Context, phrase domain.Phrase) error
	GetByID(ctx context.Context, id string) (*domain.Phrase, error)
	ListEligible(ctx context.Context, filter PhraseFilter) ([]domain.Phrase, error)
	SetActive(ctx context.Context, id string, active bool) error
}
