package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/repository"
)

const (
	defaultChallengeTTL       = 5 * time.Minute
	defaultChallengeRetention = 14 * 24 * time.Hour
)

// ChallengeService issues and consumes single-use verification challenges.
type ChallengeService struct {
	challenges port.ChallengeRepository
	phrases    port.PhraseRepository
	logger     *zap.Logger
	now        func() time.Time
	defaultTTL time.Duration
	retention  time.Duration
}

// NewChallengeService constructs a ChallengeService.
func NewChallengeService(challenges port.ChallengeRepository, phrases port.PhraseRepository, logger *zap.Logger) *ChallengeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeService{
		challenges: challenges,
		phrases:    phrases,
		logger:     logger,
		now:        time.Now,
		defaultTTL: defaultChallengeTTL,
		retention:  defaultChallengeRetention,
	}
}

// WithTTL overrides the default challenge TTL.
func (s *ChallengeService) WithTTL(ttl time.Duration) *ChallengeService {
	if ttl > 0 {
		s.defaultTTL = ttl
	}
	return s
}

// WithRetention overrides the retention window used by Reap.
func (s *ChallengeService) WithRetention(retention time.Duration) *ChallengeService {
	if retention > 0 {
		s.retention = retention
	}
	return s
}

// WithClock overrides the clock, used in tests.
func (s *ChallengeService) WithClock(clock func() time.Time) *ChallengeService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// IssueInput carries the parameters for a new challenge. A zero TTL selects
// the configured default; a negative TTL is rejected.
type IssueInput struct {
	IdentityID *string
	PhraseID   string
	TTL        time.Duration
}

// Issue creates a single-use challenge binding one phrase to one identity
// (or to no identity during anonymous enrollment).
func (s *ChallengeService) Issue(ctx context.Context, input IssueInput) (*domain.Challenge, error) {
	if input.TTL < 0 {
		return nil, ErrInvalidTTL
	}
	ttl := input.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	phraseID := strings.TrimSpace(input.PhraseID)
	if phraseID == "" {
		return nil, fmt.Errorf("phrase id is required")
	}

	phrase, err := s.phrases.GetByID(ctx, phraseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPhraseNotFound
		}
		return nil, fmt.Errorf("lookup phrase: %w", err)
	}
	if !phrase.Active {
		return nil, ErrPhraseNotFound
	}

	now := s.now().UTC()
	challenge := domain.Challenge{
		ID:         uuid.NewString(),
		IdentityID: input.IdentityID,
		PhraseID:   phrase.ID,
		PhraseText: phrase.Text,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	return &challenge, nil
}

// Consume atomically transitions a challenge from unused to used. Exactly one
// caller may win a race on the same id; losers receive ErrChallengeAlreadyUsed
// so clients can tell replay from system failure. An expired challenge never
// transitions to used.
func (s *ChallengeService) Consume(ctx context.Context, id string) (*domain.Challenge, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrChallengeNotFound
	}

	now := s.now().UTC()
	err := s.challenges.Consume(ctx, id, now)
	if err == nil {
		challenge, getErr := s.challenges.GetByID(ctx, id)
		if getErr != nil {
			return nil, fmt.Errorf("reload consumed challenge: %w", getErr)
		}
		return challenge, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}

	// No row matched: classify the loss from the record's current state.
	challenge, getErr := s.challenges.GetByID(ctx, id)
	if getErr != nil {
		if errors.Is(getErr, repository.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("classify challenge: %w", getErr)
	}
	if challenge.Used() {
		return nil, ErrChallengeAlreadyUsed
	}
	if challenge.Expired(now) {
		return nil, ErrChallengeExpired
	}
	return nil, fmt.Errorf("consume challenge %s: unexpected state", id)
}

// Reap deletes used or expired challenges older than the retention window and
// returns how many were removed. Failures are the caller's to log and retry
// on the next tick; they are never fatal.
func (s *ChallengeService) Reap(ctx context.Context) (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(-s.retention)
	deleted, err := s.challenges.DeleteFinished(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("reap challenges: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("reaped challenges", zap.Int("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
