package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/repository"
)

const (
	defaultScorerTimeout   = 10 * time.Second
	defaultMultiSessionTTL = 10 * time.Minute
)

// VerificationService renders accept/reject decisions by combining the three
// independent biometric signals under the active threshold policy.
type VerificationService struct {
	identities  port.IdentityRepository
	voiceprints port.VoiceprintRepository
	attempts    port.AttemptRepository
	sessions    port.MultiPhraseSessionStore
	challenges  *ChallengeService
	phrases     *PhraseService
	lockout     *LockoutService
	scorer      port.VerificationScorer
	policies    port.PolicyProvider
	events      port.EventPublisher
	logger      *zap.Logger
	now         func() time.Time

	scorerTimeout   time.Duration
	sessionTTL      time.Duration
	multiDifficulty domain.PhraseDifficulty
	onDecision      func(accepted bool, reason string)
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(
	identities port.IdentityRepository,
	voiceprints port.VoiceprintRepository,
	attempts port.AttemptRepository,
	sessions port.MultiPhraseSessionStore,
	challenges *ChallengeService,
	phrases *PhraseService,
	lockout *LockoutService,
	scorer port.VerificationScorer,
	policies port.PolicyProvider,
	events port.EventPublisher,
	logger *zap.Logger,
) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{
		identities:      identities,
		voiceprints:     voiceprints,
		attempts:        attempts,
		sessions:        sessions,
		challenges:      challenges,
		phrases:         phrases,
		lockout:         lockout,
		scorer:          scorer,
		policies:        policies,
		events:          events,
		logger:          logger,
		now:             time.Now,
		scorerTimeout:   defaultScorerTimeout,
		sessionTTL:      defaultMultiSessionTTL,
		multiDifficulty: domain.PhraseDifficultyMedium,
	}
}

// WithScorerTimeout overrides the per-attempt scorer deadline.
func (s *VerificationService) WithScorerTimeout(timeout time.Duration) *VerificationService {
	if timeout > 0 {
		s.scorerTimeout = timeout
	}
	return s
}

// WithSessionTTL overrides how long a multi-phrase session may stay open.
func (s *VerificationService) WithSessionTTL(ttl time.Duration) *VerificationService {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
	return s
}

// WithDecisionObserver registers a callback invoked once per finalized
// decision, single-phrase and multi-phrase alike.
func (s *VerificationService) WithDecisionObserver(observe func(accepted bool, reason string)) *VerificationService {
	s.onDecision = observe
	return s
}

// WithClock overrides the clock, used in tests.
func (s *VerificationService) WithClock(clock func() time.Time) *VerificationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Verify runs the single-phrase hard cascade for one challenge and audio
// sample. The lock check happens before any scoring; a consumed challenge
// stays consumed even when the caller disconnects mid-flight.
func (s *VerificationService) Verify(ctx context.Context, identityID, challengeID string, audio []byte) (*domain.VerificationAttempt, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("identity id is required")
	}
	if strings.TrimSpace(challengeID) == "" {
		return nil, fmt.Errorf("challenge id is required")
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio is required")
	}

	start := s.now().UTC()
	attempt := &domain.VerificationAttempt{
		ID:          uuid.NewString(),
		IdentityID:  &identityID,
		ChallengeID: challengeID,
		CreatedAt:   start,
	}
	if err := s.attempts.Create(ctx, *attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	locked, until, err := s.lockout.IsLocked(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if locked {
		s.decide(ctx, attempt, false, domain.ReasonLocked, nil, start)
		s.publishDecided(ctx, attempt)
		return attempt, fmt.Errorf("%w until %s", ErrLocked, until.Format(time.RFC3339))
	}

	// The anti-replay token must burn even if the client disconnects, so the
	// consume and everything after it run detached from request cancellation.
	opCtx := context.WithoutCancel(ctx)

	challenge, err := s.challenges.Consume(opCtx, challengeID)
	if err != nil {
		switch {
		case errors.Is(err, ErrChallengeExpired),
			errors.Is(err, ErrChallengeAlreadyUsed),
			errors.Is(err, ErrChallengeNotFound):
			s.decide(opCtx, attempt, false, domain.ReasonExpiredChallenge, nil, start)
			s.recordOutcome(opCtx, identityID, false)
			s.publishDecided(opCtx, attempt)
			return attempt, err
		default:
			return nil, err
		}
	}
	if challenge.IdentityID != nil && *challenge.IdentityID != identityID {
		s.decide(opCtx, attempt, false, domain.ReasonError, nil, start)
		s.recordOutcome(opCtx, identityID, false)
		s.publishDecided(opCtx, attempt)
		return attempt, ErrChallengeMismatch
	}

	voiceprint, err := s.voiceprints.GetCurrent(opCtx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.decide(opCtx, attempt, false, domain.ReasonNotEnrolled, nil, start)
			s.publishDecided(opCtx, attempt)
			return attempt, ErrNotEnrolled
		}
		return nil, fmt.Errorf("lookup voiceprint: %w", err)
	}

	scores, err := s.runScorers(ctx, audio, voiceprint.Embedding, challenge.PhraseText)
	if err != nil {
		// A broken scorer is a rejection that still counts toward lockout,
		// never a silent accept.
		s.decide(opCtx, attempt, false, domain.ReasonError, nil, start)
		s.recordOutcome(opCtx, identityID, false)
		s.publishDecided(opCtx, attempt)
		return attempt, err
	}

	policy := s.policies.Current()
	outcome := domain.CascadeDecider{Thresholds: policy.Thresholds}.Decide(scores)

	s.decide(opCtx, attempt, outcome.Accepted, outcome.Reason, &scores, start)
	s.recordOutcome(opCtx, identityID, outcome.Accepted)
	s.publishDecided(opCtx, attempt)

	return attempt, nil
}

// StartSession opens a multi-phrase verification: a fresh set of phrases,
// each bound to its own single-use challenge. Retries are whole new sessions.
func (s *VerificationService) StartSession(ctx context.Context, identityID string, phraseCount int) (*domain.MultiPhraseSession, []domain.Challenge, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, nil, fmt.Errorf("identity id is required")
	}

	locked, until, err := s.lockout.IsLocked(ctx, identityID)
	if err != nil {
		return nil, nil, err
	}
	if locked {
		return nil, nil, fmt.Errorf("%w until %s", ErrLocked, until.Format(time.RFC3339))
	}

	if _, err := s.voiceprints.GetCurrent(ctx, identityID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrNotEnrolled
		}
		return nil, nil, fmt.Errorf("lookup voiceprint: %w", err)
	}

	policy := s.policies.Current()
	count := phraseCount
	if count <= 0 {
		count = policy.Multi.PhraseCount
	}

	selected, err := s.phrases.NextPhrases(ctx, identityID, count, s.multiDifficulty)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	steps := make([]domain.PhraseStep, 0, count)
	issued := make([]domain.Challenge, 0, count)
	for _, phrase := range selected {
		challenge, err := s.challenges.Issue(ctx, IssueInput{IdentityID: &identityID, PhraseID: phrase.ID})
		if err != nil {
			return nil, nil, fmt.Errorf("issue challenge: %w", err)
		}
		steps = append(steps, domain.PhraseStep{ChallengeID: challenge.ID, PhraseID: phrase.ID})
		issued = append(issued, *challenge)
	}

	session := domain.MultiPhraseSession{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Steps:      steps,
		State:      domain.MultiPhrasePending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.sessionTTL),
	}
	if err := s.sessions.Save(ctx, session, s.sessionTTL); err != nil {
		return nil, nil, fmt.Errorf("save session: %w", err)
	}
	return &session, issued, nil
}

// SubmitPhraseResult reports the session state after one phrase submission.
type SubmitPhraseResult struct {
	Session      domain.MultiPhraseSession
	Final        bool
	Accepted     bool
	Reason       domain.DecisionReason
	AverageScore float64
}

// SubmitPhrase scores one phrase of a multi-phrase session. A spoof signal
// above the session cutoff rejects the whole session immediately, skipping
// the remaining phrases; otherwise the penalized per-phrase score accumulates
// and the final submission decides on the average.
func (s *VerificationService) SubmitPhrase(ctx context.Context, sessionID string, phraseIndex int, audio []byte) (*SubmitPhraseResult, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio is required")
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != domain.MultiPhrasePending {
		return nil, ErrSessionFinished
	}
	if phraseIndex < 0 || phraseIndex >= len(session.Steps) {
		return nil, fmt.Errorf("phrase index %d out of range", phraseIndex)
	}
	if session.Steps[phraseIndex].Submitted {
		return nil, ErrPhraseSubmitted
	}

	locked, until, err := s.lockout.IsLocked(ctx, session.IdentityID)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, fmt.Errorf("%w until %s", ErrLocked, until.Format(time.RFC3339))
	}

	start := s.now().UTC()
	identityID := session.IdentityID
	challengeID := session.Steps[phraseIndex].ChallengeID
	attempt := &domain.VerificationAttempt{
		ID:          uuid.NewString(),
		IdentityID:  &identityID,
		ChallengeID: challengeID,
		SessionID:   &session.ID,
		CreatedAt:   start,
	}
	if err := s.attempts.Create(ctx, *attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	opCtx := context.WithoutCancel(ctx)

	challenge, err := s.challenges.Consume(opCtx, challengeID)
	if err != nil {
		switch {
		case errors.Is(err, ErrChallengeExpired),
			errors.Is(err, ErrChallengeAlreadyUsed),
			errors.Is(err, ErrChallengeNotFound):
			s.decide(opCtx, attempt, false, domain.ReasonExpiredChallenge, nil, start)
			s.rejectSession(opCtx, session, attempt, identityID, true)
			return s.result(*session, attempt), err
		default:
			return nil, err
		}
	}

	voiceprint, err := s.voiceprints.GetCurrent(opCtx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.decide(opCtx, attempt, false, domain.ReasonNotEnrolled, nil, start)
			s.rejectSession(opCtx, session, attempt, identityID, false)
			return s.result(*session, attempt), ErrNotEnrolled
		}
		return nil, fmt.Errorf("lookup voiceprint: %w", err)
	}

	scores, err := s.runScorers(ctx, audio, voiceprint.Embedding, challenge.PhraseText)
	if err != nil {
		s.decide(opCtx, attempt, false, domain.ReasonError, nil, start)
		s.rejectSession(opCtx, session, attempt, identityID, true)
		return s.result(*session, attempt), err
	}

	policy := s.policies.Current()

	// Fail-fast: one convincing spoof signal invalidates the whole session
	// regardless of the other phrases' scores.
	if domain.SpoofShortCircuit(scores, policy.Multi.SpoofCutoff) {
		s.decide(opCtx, attempt, false, domain.ReasonSpoofDetected, &scores, start)
		s.rejectSession(opCtx, session, attempt, identityID, true)
		return s.result(*session, attempt), nil
	}

	score := domain.PhraseScore(scores, policy.Thresholds.Text, policy.Multi.PhrasePenalty)

	var (
		final    bool
		average  float64
		accepted bool
		reason   domain.DecisionReason
	)
	err = s.mutateSession(opCtx, session, func(cur *domain.MultiPhraseSession) error {
		if cur.State != domain.MultiPhrasePending {
			return ErrSessionFinished
		}
		if cur.Steps[phraseIndex].Submitted {
			return ErrPhraseSubmitted
		}
		cur.Steps[phraseIndex].Submitted = true
		cur.Steps[phraseIndex].Score = score
		final = cur.SubmittedCount() == len(cur.Steps)
		if !final {
			return nil
		}
		average = cur.AverageScore()
		accepted = average >= policy.Multi.Threshold
		reason = domain.ReasonOK
		cur.State = domain.MultiPhraseCompleted
		if !accepted {
			reason = domain.ReasonLowAverage
			cur.State = domain.MultiPhraseRejected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if final {
		s.decide(opCtx, attempt, accepted, reason, &scores, start)
		s.recordOutcome(opCtx, identityID, accepted)
		s.publishDecided(opCtx, attempt)
		out := s.result(*session, attempt)
		out.AverageScore = average
		return out, nil
	}
	return s.result(*session, attempt), nil
}

// GetSession returns a multi-phrase session by id.
func (s *VerificationService) GetSession(ctx context.Context, sessionID string) (*domain.MultiPhraseSession, error) {
	return s.loadSession(ctx, sessionID)
}

func (s *VerificationService) loadSession(ctx context.Context, sessionID string) (*domain.MultiPhraseSession, error) {
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
	return session, nil
}

func (s *VerificationService) result(session domain.MultiPhraseSession, attempt *domain.VerificationAttempt) *SubmitPhraseResult {
	out := &SubmitPhraseResult{
		Session: session,
		Final:   session.State != domain.MultiPhrasePending,
		Reason:  attempt.Reason,
	}
	if attempt.Accepted != nil {
		out.Accepted = *attempt.Accepted
	}
	return out
}

// rejectSession marks the session terminally rejected, counts the failure
// toward lockout when the refusal is attacker-reachable, and publishes the
// decided attempt.
func (s *VerificationService) rejectSession(ctx context.Context, session *domain.MultiPhraseSession, attempt *domain.VerificationAttempt, identityID string, countFailure bool) {
	err := s.mutateSession(ctx, session, func(cur *domain.MultiPhraseSession) error {
		if cur.State == domain.MultiPhrasePending {
			cur.State = domain.MultiPhraseRejected
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("reject session failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	if countFailure {
		s.recordOutcome(ctx, identityID, false)
	}
	s.publishDecided(ctx, attempt)
}

const sessionUpdateRetries = 3

// mutateSession applies a change to the session under compare-and-set
// semantics: a stale write is retried against a freshly loaded copy, so
// concurrent submissions of different phrases both land instead of one
// overwriting the other.
func (s *VerificationService) mutateSession(ctx context.Context, session *domain.MultiPhraseSession, apply func(*domain.MultiPhraseSession) error) error {
	for retries := 0; ; retries++ {
		if err := apply(session); err != nil {
			return err
		}
		remaining := session.ExpiresAt.Sub(s.now().UTC())
		if remaining <= 0 {
			return ErrSessionNotFound
		}
		err := s.sessions.Update(ctx, *session, remaining)
		if err == nil {
			session.Version++
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) || retries >= sessionUpdateRetries {
			return fmt.Errorf("update session: %w", err)
		}
		fresh, loadErr := s.loadSession(ctx, session.ID)
		if loadErr != nil {
			return loadErr
		}
		*session = *fresh
	}
}

// runScorers issues the three independent scorer calls concurrently and waits
// for all of them under one deadline. A timeout is a scoring failure, never a
// pass.
func (s *VerificationService) runScorers(ctx context.Context, audio []byte, voiceprint []float64, expectedText string) (domain.SignalScores, error) {
	scoreCtx, cancel := context.WithTimeout(ctx, s.scorerTimeout)
	defer cancel()

	var (
		scores                    domain.SignalScores
		simErr, spoofErr, textErr error
		wg                        sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		scores.Similarity, simErr = s.scorer.Similarity(scoreCtx, audio, voiceprint)
	}()
	go func() {
		defer wg.Done()
		scores.SpoofProb, spoofErr = s.scorer.SpoofProbability(scoreCtx, audio)
	}()
	go func() {
		defer wg.Done()
		scores.PhraseMatch, textErr = s.scorer.PhraseMatch(scoreCtx, audio, expectedText)
	}()
	wg.Wait()

	if err := errors.Join(simErr, spoofErr, textErr); err != nil {
		return scores, fmt.Errorf("%w: %v", ErrScorerFailure, err)
	}
	return scores, nil
}

// decide finalizes the attempt exactly once and mirrors the decision onto the
// in-memory copy returned to the caller.
func (s *VerificationService) decide(ctx context.Context, attempt *domain.VerificationAttempt, accepted bool, reason domain.DecisionReason, scores *domain.SignalScores, start time.Time) {
	decidedAt := s.now().UTC()
	decision := port.AttemptDecision{
		Accepted:  accepted,
		Reason:    reason,
		Scores:    scores,
		Latency:   decidedAt.Sub(start),
		DecidedAt: decidedAt,
	}
	if err := s.attempts.Decide(ctx, attempt.ID, decision); err != nil {
		s.logger.Error("decide attempt failed", zap.String("attempt_id", attempt.ID), zap.Error(err))
	}
	attempt.Decided = true
	attempt.Accepted = &accepted
	attempt.Reason = reason
	attempt.Scores = scores
	attempt.Latency = decision.Latency
	attempt.DecidedAt = &decidedAt

	if s.onDecision != nil {
		s.onDecision(accepted, string(reason))
	}
}

func (s *VerificationService) recordOutcome(ctx context.Context, identityID string, accepted bool) {
	if s.lockout == nil {
		return
	}
	if _, err := s.lockout.RecordOutcome(ctx, identityID, accepted); err != nil {
		s.logger.Error("record outcome failed", zap.String("identity_id", identityID), zap.Error(err))
	}
}

func (s *VerificationService) publishDecided(ctx context.Context, attempt *domain.VerificationAttempt) {
	if s.events == nil || !attempt.Decided || attempt.Accepted == nil {
		return
	}
	event := domain.VerificationDecidedEvent{
		EventID:     uuid.NewString(),
		AttemptID:   attempt.ID,
		IdentityID:  attempt.IdentityID,
		ChallengeID: attempt.ChallengeID,
		SessionID:   attempt.SessionID,
		Accepted:    *attempt.Accepted,
		Reason:      string(attempt.Reason),
		DecidedAt:   *attempt.DecidedAt,
		Latency:     attempt.Latency,
	}
	if err := s.events.PublishVerificationDecided(ctx, event); err != nil {
		s.logger.Warn("publish verification decided failed", zap.String("attempt_id", attempt.ID), zap.Error(err))
	}
}
