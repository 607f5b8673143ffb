package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/repository"
)

const (
	defaultExclusionWindow = 50
	defaultPhraseLanguage  = "en"
)

// PhraseService selects challenge phrases and curates the phrase pool.
type PhraseService struct {
	phrases         port.PhraseRepository
	usage           port.PhraseUsageStore
	logger          *zap.Logger
	now             func() time.Time
	exclusionWindow int
	language        string
	pick            func(n int) int
}

// NewPhraseService constructs a PhraseService.
func NewPhraseService(phrases port.PhraseRepository, usage port.PhraseUsageStore, logger *zap.Logger) *PhraseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhraseService{
		phrases:         phrases,
		usage:           usage,
		logger:          logger,
		now:             time.Now,
		exclusionWindow: defaultExclusionWindow,
		language:        defaultPhraseLanguage,
		pick:            rand.Intn,
	}
}

// WithExclusionWindow overrides how many recently served phrases are excluded.
func (s *PhraseService) WithExclusionWindow(window int) *PhraseService {
	if window >= 0 {
		s.exclusionWindow = window
	}
	return s
}

// WithLanguage overrides the default phrase language.
func (s *PhraseService) WithLanguage(language string) *PhraseService {
	if trimmed := strings.TrimSpace(language); trimmed != "" {
		s.language = trimmed
	}
	return s
}

// WithClock overrides the clock, used in tests.
func (s *PhraseService) WithClock(clock func() time.Time) *PhraseService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithPicker overrides the random index picker, used in tests.
func (s *PhraseService) WithPicker(pick func(n int) int) *PhraseService {
	if pick != nil {
		s.pick = pick
	}
	return s
}

// NextPhrases selects count active phrases of the requested difficulty,
// excluding the identity's most recently served phrases. Ties are broken by
// uniform random selection among the eligible pool. When the pool minus
// exclusions is smaller than count it fails with ErrNoEligiblePhrases; the
// caller may retry with relaxed exclusion by passing an empty identity id.
func (s *PhraseService) NextPhrases(ctx context.Context, identityID string, count int, difficulty domain.PhraseDifficulty) ([]domain.Phrase, error) {
	if count <= 0 {
		return nil, fmt.Errorf("phrase count must be positive")
	}
	if !difficulty.Valid() {
		return nil, fmt.Errorf("unknown difficulty %q", difficulty)
	}

	var exclude []string
	if identityID != "" && s.usage != nil && s.exclusionWindow > 0 {
		recent, err := s.usage.RecentPhraseIDs(ctx, identityID, s.exclusionWindow)
		if err != nil {
			// Exclusion is a predictability hedge, not a correctness
			// requirement; selection proceeds without it.
			s.logger.Warn("recent phrase lookup failed", zap.String("identity_id", identityID), zap.Error(err))
		} else {
			exclude = recent
		}
	}

	pool, err := s.phrases.ListEligible(ctx, port.PhraseFilter{
		Language:   s.language,
		Difficulty: difficulty,
		ExcludeIDs: exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("list eligible phrases: %w", err)
	}
	if len(pool) < count {
		return nil, ErrNoEligiblePhrases
	}

	selected := make([]domain.Phrase, 0, count)
	for i := 0; i < count; i++ {
		j := i + s.pick(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
		selected = append(selected, pool[i])
	}

	if identityID != "" && s.usage != nil {
		ids := make([]string, len(selected))
		for i, p := range selected {
			ids[i] = p.ID
		}
		if err := s.usage.RecordUse(ctx, identityID, ids, s.now().UTC()); err != nil {
			s.logger.Warn("record phrase use failed", zap.String("identity_id", identityID), zap.Error(err))
		}
	}

	return selected, nil
}

// PhraseInput carries the fields for a new pool phrase.
type PhraseInput struct {
	Text       string
	Language   string
	Difficulty domain.PhraseDifficulty
}

// CreatePhrase adds an active phrase to the pool.
func (s *PhraseService) CreatePhrase(ctx context.Context, input PhraseInput) (*domain.Phrase, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, fmt.Errorf("phrase text is required")
	}
	if !input.Difficulty.Valid() {
		return nil, fmt.Errorf("unknown difficulty %q", input.Difficulty)
	}
	language := strings.TrimSpace(input.Language)
	if language == "" {
		language = s.language
	}

	phrase := domain.Phrase{
		ID:         uuid.NewString(),
		Text:       text,
		Language:   language,
		Difficulty: input.Difficulty,
		Active:     true,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.phrases.Create(ctx, phrase); err != nil {
		return nil, fmt.Errorf("create phrase: %w", err)
	}
	return &phrase, nil
}

// DeactivatePhrase removes a phrase from the active pool without deleting it.
func (s *PhraseService) DeactivatePhrase(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("phrase id is required")
	}
	if err := s.phrases.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPhraseNotFound
		}
		return fmt.Errorf("deactivate phrase: %w", err)
	}
	return nil
}
