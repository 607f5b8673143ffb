package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/repository"
)

const (
	defaultRequiredSamples   = 5
	defaultMinSNRdB          = 15.0
	defaultMinSampleDuration = 2 * time.Second
	defaultSessionTTL        = 30 * time.Minute
)

// EnrollmentService collects quality-gated audio samples and aggregates them
// into a voiceprint, versioning any prior template.
type EnrollmentService struct {
	identities  port.IdentityRepository
	samples     port.SampleRepository
	voiceprints port.VoiceprintRepository
	sessions    port.EnrollmentSessionStore
	challenges  *ChallengeService
	scorer      port.EnrollmentScorer
	events      port.EventPublisher
	logger      *zap.Logger
	now         func() time.Time

	requiredSamples int
	minSNRdB        float64
	minDuration     time.Duration
	sessionTTL      time.Duration
	scorerTimeout   time.Duration
	modelVersion    string
	onComplete      func(reenrollment bool)
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(identities port.IdentityRepository, samples port.SampleRepository, voiceprints port.VoiceprintRepository, sessions port.EnrollmentSessionStore, challenges *ChallengeService, scorer port.EnrollmentScorer, events port.EventPublisher, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		identities:      identities,
		samples:         samples,
		voiceprints:     voiceprints,
		sessions:        sessions,
		challenges:      challenges,
		scorer:          scorer,
		events:          events,
		logger:          logger,
		now:             time.Now,
		requiredSamples: defaultRequiredSamples,
		minSNRdB:        defaultMinSNRdB,
		minDuration:     defaultMinSampleDuration,
		sessionTTL:      defaultSessionTTL,
		scorerTimeout:   defaultScorerTimeout,
		modelVersion:    "unknown",
	}
}

// WithQualityFloors overrides the SNR and duration floors.
func (s *EnrollmentService) WithQualityFloors(minSNRdB float64, minDuration time.Duration) *EnrollmentService {
	if minSNRdB > 0 {
		s.minSNRdB = minSNRdB
	}
	if minDuration > 0 {
		s.minDuration = minDuration
	}
	return s
}

// WithRequiredSamples overrides the default sample count for new sessions.
func (s *EnrollmentService) WithRequiredSamples(count int) *EnrollmentService {
	if count > 0 {
		s.requiredSamples = count
	}
	return s
}

// WithSessionTTL overrides how long an idle session survives.
func (s *EnrollmentService) WithSessionTTL(ttl time.Duration) *EnrollmentService {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
	return s
}

// WithScorerTimeout overrides the per-call scorer deadline.
func (s *EnrollmentService) WithScorerTimeout(timeout time.Duration) *EnrollmentService {
	if timeout > 0 {
		s.scorerTimeout = timeout
	}
	return s
}

// WithModelVersion records which embedding model produced the samples.
func (s *EnrollmentService) WithModelVersion(version string) *EnrollmentService {
	if trimmed := strings.TrimSpace(version); trimmed != "" {
		s.modelVersion = trimmed
	}
	return s
}

// WithCompletionObserver registers a callback invoked once per completed
// enrollment.
func (s *EnrollmentService) WithCompletionObserver(observe func(reenrollment bool)) *EnrollmentService {
	s.onComplete = observe
	return s
}

// WithClock overrides the clock, used in tests.
func (s *EnrollmentService) WithClock(clock func() time.Time) *EnrollmentService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// StartInput carries the parameters for a new enrollment session.
type StartInput struct {
	IdentityID      string
	ExternalRef     string
	RequiredSamples int
	ForceOverwrite  bool
}

// Start allocates an enrollment session, creating a fresh identity when none
// is supplied. Re-enrollment of an already enrolled identity requires
// ForceOverwrite; the existing voiceprint stays current until Complete.
func (s *EnrollmentService) Start(ctx context.Context, input StartInput) (*domain.EnrollmentSession, error) {
	now := s.now().UTC()
	identityID := strings.TrimSpace(input.IdentityID)

	if identityID == "" {
		identity := domain.Identity{
			ID:        uuid.NewString(),
			Status:    domain.IdentityStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if ref := strings.TrimSpace(input.ExternalRef); ref != "" {
			identity.ExternalRef = &ref
		}
		if err := s.identities.Create(ctx, identity); err != nil {
			return nil, fmt.Errorf("create identity: %w", err)
		}
		identityID = identity.ID
	} else {
		if _, err := s.identities.GetByID(ctx, identityID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrIdentityNotFound
			}
			return nil, fmt.Errorf("lookup identity: %w", err)
		}
		current, err := s.voiceprints.GetCurrent(ctx, identityID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup voiceprint: %w", err)
		}
		if current != nil && !input.ForceOverwrite {
			return nil, ErrAlreadyEnrolled
		}
	}

	required := input.RequiredSamples
	if required <= 0 {
		required = s.requiredSamples
	}

	session := domain.EnrollmentSession{
		ID:              uuid.NewString(),
		IdentityID:      identityID,
		RequiredSamples: required,
		ForceOverwrite:  input.ForceOverwrite,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.sessionTTL),
	}
	if err := s.sessions.Save(ctx, session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &session, nil
}

// AddSampleResult reports session progress after one submission.
type AddSampleResult struct {
	SamplesCompleted int
	Complete         bool
	SNRdB            float64
	Duration         time.Duration
}

// AddSample consumes the challenge, scores the audio, and appends the sample
// when it clears the quality floors. Rejected samples never count toward the
// session's required total.
func (s *EnrollmentService) AddSample(ctx context.Context, sessionID, challengeID string, audio []byte) (*AddSampleResult, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio is required")
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Complete() {
		return nil, ErrSessionFinished
	}

	challenge, err := s.challenges.Consume(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.IdentityID != nil && *challenge.IdentityID != session.IdentityID {
		return nil, ErrChallengeMismatch
	}

	scoreCtx, cancel := context.WithTimeout(ctx, s.scorerTimeout)
	defer cancel()
	embedding, quality, err := s.scorer.EmbedAndQuality(scoreCtx, audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScorerFailure, err)
	}

	if quality.SNRdB < s.minSNRdB || quality.Duration < s.minDuration {
		return nil, fmt.Errorf("%w: snr=%.1fdB duration=%s", ErrLowQuality, quality.SNRdB, quality.Duration)
	}

	now := s.now().UTC()
	sample := domain.EnrollmentSample{
		ID:         uuid.NewString(),
		IdentityID: session.IdentityID,
		SessionID:  session.ID,
		Embedding:  embedding,
		SNRdB:      quality.SNRdB,
		Duration:   quality.Duration,
		CreatedAt:  now,
	}
	if err := s.samples.Create(ctx, sample); err != nil {
		return nil, fmt.Errorf("store sample: %w", err)
	}

	session.SamplesDone++
	remaining := session.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return nil, ErrSessionNotFound
	}
	if err := s.sessions.Save(ctx, *session, remaining); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return &AddSampleResult{
		SamplesCompleted: session.SamplesDone,
		Complete:         session.Complete(),
		SNRdB:            quality.SNRdB,
		Duration:         quality.Duration,
	}, nil
}

// Complete aggregates the session's samples into a voiceprint. Any existing
// current voiceprint is appended to history before being overwritten, inside
// one transaction, and the session is discarded.
func (s *EnrollmentService) Complete(ctx context.Context, sessionID string) (*domain.Voiceprint, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Complete() {
		return nil, ErrIncompleteSession
	}

	samples, err := s.samples.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	if len(samples) < session.RequiredSamples {
		return nil, ErrIncompleteSession
	}

	embedding, err := aggregateEmbeddings(samples)
	if err != nil {
		return nil, err
	}

	hadCurrent := false
	if current, err := s.voiceprints.GetCurrent(ctx, session.IdentityID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup voiceprint: %w", err)
		}
	} else if current != nil {
		hadCurrent = true
	}

	now := s.now().UTC()
	voiceprint := domain.Voiceprint{
		ID:           uuid.NewString(),
		IdentityID:   session.IdentityID,
		Embedding:    embedding,
		SampleCount:  len(samples),
		ModelVersion: s.modelVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.voiceprints.Replace(ctx, voiceprint, session.ID); err != nil {
		return nil, fmt.Errorf("replace voiceprint: %w", err)
	}

	if err := s.identities.UpdateStatus(ctx, session.IdentityID, domain.IdentityStatusEnrolled); err != nil {
		s.logger.Warn("update identity status failed", zap.String("identity_id", session.IdentityID), zap.Error(err))
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		s.logger.Warn("delete enrollment session failed", zap.String("session_id", session.ID), zap.Error(err))
	}

	s.publishCompleted(ctx, voiceprint, hadCurrent)
	if s.onComplete != nil {
		s.onComplete(hadCurrent)
	}

	return &voiceprint, nil
}

// Abort discards a session without touching the identity's current voiceprint.
func (s *EnrollmentService) Abort(ctx context.Context, sessionID string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *EnrollmentService) loadSession(ctx context.Context, sessionID string) (*domain.EnrollmentSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !s.now().UTC().Before(session.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *EnrollmentService) publishCompleted(ctx context.Context, voiceprint domain.Voiceprint, reenrollment bool) {
	if s.events == nil {
		return
	}
	event := domain.EnrollmentCompletedEvent{
		EventID:      uuid.NewString(),
		IdentityID:   voiceprint.IdentityID,
		VoiceprintID: voiceprint.ID,
		SampleCount:  voiceprint.SampleCount,
		Reenrollment: reenrollment,
		CompletedAt:  voiceprint.CreatedAt,
	}
	if err := s.events.PublishEnrollmentCompleted(ctx, event); err != nil {
		s.logger.Warn("publish enrollment completed failed", zap.String("identity_id", voiceprint.IdentityID), zap.Error(err))
	}
}

// aggregateEmbeddings averages the L2-normalized sample embeddings and
// re-normalizes the mean, yielding a unit-length template.
func aggregateEmbeddings(samples []domain.EnrollmentSample) ([]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to aggregate")
	}
	dim := len(samples[0].Embedding)
	if dim == 0 {
		return nil, fmt.Errorf("empty embedding")
	}

	sum := make([]float64, dim)
	for _, sample := range samples {
		if len(sample.Embedding) != dim {
			return nil, fmt.Errorf("embedding dimension mismatch: %d vs %d", len(sample.Embedding), dim)
		}
		normalized, err := normalize(sample.Embedding)
		if err != nil {
			return nil, err
		}
		for i, v := range normalized {
			sum[i] += v
		}
	}
	for i := range sum {
		sum[i] /= float64(len(samples))
	}
	return normalize(sum)
}

func normalize(vector []float64) ([]float64, error) {
	var sq float64
	for _, v := range vector {
		sq += v * v
	}
	norm := math.Sqrt(sq)
	if norm == 0 {
		return nil, fmt.Errorf("zero-norm embedding")
	}
	out := make([]float64, len(vector))
	for i, v := range vector {
		out[i] = v / norm
	}
	return out, nil
}
