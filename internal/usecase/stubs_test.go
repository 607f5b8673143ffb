package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/repository"
)

type stubIdentityRepo struct {
	identities map[string]domain.Identity
	lockCalls  []lockCall
}

type lockCall struct {
	identityID  string
	failures    int
	lockedUntil *time.Time
}

func newStubIdentityRepo(identities ...domain.Identity) *stubIdentityRepo {
	repo := &stubIdentityRepo{identities: make(map[string]domain.Identity)}
	for _, identity := range identities {
		repo.identities[identity.ID] = identity
	}
	return repo
}

func (r *stubIdentityRepo) Create(_ context.Context, identity domain.Identity) error {
	r.identities[identity.ID] = identity
	return nil
}

func (r *stubIdentityRepo) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	identity, ok := r.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := identity
	return &copy, nil
}

func (r *stubIdentityRepo) UpdateStatus(_ context.Context, id string, status domain.IdentityStatus) error {
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.Status = status
	r.identities[id] = identity
	return nil
}

func (r *stubIdentityRepo) UpdateLockState(_ context.Context, id string, failures int, lockedUntil *time.Time) error {
	r.lockCalls = append(r.lockCalls, lockCall{identityID: id, failures: failures, lockedUntil: lockedUntil})
	return nil
}

//

type stubVoiceprintRepo struct {
	current map[string]domain.Voiceprint
	history []domain.VoiceprintHistoryEntry
}

func newStubVoiceprintRepo() *stubVoiceprintRepo {
	return &stubVoiceprintRepo{current: make(map[string]domain.Voiceprint)}
}

func (r *stubVoiceprintRepo) GetCurrent(_ context.Context, identityID string) (*domain.Voiceprint, error) {
	voiceprint, ok := r.current[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := voiceprint
	return &copy, nil
}

func (r *stubVoiceprintRepo) Replace(_ context.Context, voiceprint domain.Voiceprint, _ string) error {
	if prior, ok := r.current[voiceprint.IdentityID]; ok {
		r.history = append(r.history, domain.VoiceprintHistoryEntry{
			IdentityID:   prior.IdentityID,
			VoiceprintID: prior.ID,
			Embedding:    prior.Embedding,
			SampleCount:  prior.SampleCount,
			ModelVersion: prior.ModelVersion,
			CreatedAt:    prior.CreatedAt,
			RetiredAt:    voiceprint.CreatedAt,
		})
	}
	r.current[voiceprint.IdentityID] = voiceprint
	return nil
}

func (r *stubVoiceprintRepo) History(_ context.Context, identityID string) ([]domain.VoiceprintHistoryEntry, error) {
	var out []domain.VoiceprintHistoryEntry
	for _, entry := range r.history {
		if entry.IdentityID == identityID {
			out = append(out, entry)
		}
	}
	return out, nil
}

//

type stubAttemptRepo struct {
	mu       sync.Mutex
	attempts map[string]domain.VerificationAttempt
	order    []string
}

func newStubAttemptRepo() *stubAttemptRepo {
	return &stubAttemptRepo{attempts: make(map[string]domain.VerificationAttempt)}
}

func (r *stubAttemptRepo) Create(_ context.Context, attempt domain.VerificationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[attempt.ID] = attempt
	r.order = append(r.order, attempt.ID)
	return nil
}

func (r *stubAttemptRepo) Decide(_ context.Context, id string, decision port.AttemptDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if attempt.Decided {
		return repository.ErrConflict
	}
	decidedAt := decision.DecidedAt
	accepted := decision.Accepted
	attempt.Decided = true
	attempt.Accepted = &accepted
	attempt.Reason = decision.Reason
	attempt.Scores = decision.Scores
	attempt.Latency = decision.Latency
	attempt.DecidedAt = &decidedAt
	r.attempts[id] = attempt
	return nil
}

func (r *stubAttemptRepo) GetByID(_ context.Context, id string) (*domain.VerificationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := attempt
	return &copy, nil
}

func (r *stubAttemptRepo) ListByIdentity(_ context.Context, identityID string, limit int) ([]domain.VerificationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.VerificationAttempt
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		attempt := r.attempts[r.order[i]]
		if attempt.IdentityID != nil && *attempt.IdentityID == identityID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

func (r *stubAttemptRepo) DeleteDecidedBefore(_ context.Context, decidedBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, attempt := range r.attempts {
		if attempt.Decided && attempt.DecidedAt != nil && attempt.DecidedAt.Before(decidedBefore) {
			delete(r.attempts, id)
			deleted++
		}
	}
	return deleted, nil
}

// decidedReasons returns the reasons of decided attempts in creation order.
func (r *stubAttemptRepo) decidedReasons() []domain.DecisionReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DecisionReason
	for _, id := range r.order {
		if attempt := r.attempts[id]; attempt.Decided {
			out = append(out, attempt.Reason)
		}
	}
	return out
}

//

type stubChallengeRepo struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
}

func newStubChallengeRepo(challenges ...domain.Challenge) *stubChallengeRepo {
	repo := &stubChallengeRepo{challenges: make(map[string]domain.Challenge)}
	for _, challenge := range challenges {
		repo.challenges[challenge.ID] = challenge
	}
	return repo
}

func (r *stubChallengeRepo) Create(_ context.Context, challenge domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges[challenge.ID] = challenge
	return nil
}

func (r *stubChallengeRepo) GetByID(_ context.Context, id string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	challenge, ok := r.challenges[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := challenge
	return &copy, nil
}

func (r *stubChallengeRepo) Consume(_ context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	challenge, ok := r.challenges[id]
	if !ok || challenge.Used() || challenge.Expired(usedAt) {
		return repository.ErrNotFound
	}
	challenge.UsedAt = &usedAt
	r.challenges[id] = challenge
	return nil
}

func (r *stubChallengeRepo) DeleteFinished(_ context.Context, createdBefore, _ time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, challenge := range r.challenges {
		if challenge.CreatedAt.Before(createdBefore) {
			delete(r.challenges, id)
			deleted++
		}
	}
	return deleted, nil
}

//

type stubPhraseRepo struct {
	phrases map[string]domain.Phrase
}

func newStubPhraseRepo(phrases ...domain.Phrase) *stubPhraseRepo {
	repo := &stubPhraseRepo{phrases: make(map[string]domain.Phrase)}
	for _, phrase := range phrases {
		repo.phrases[phrase.ID] = phrase
	}
	return repo
}

func (r *stubPhraseRepo) Create(_ context.Context, phrase domain.Phrase) error {
	r.phrases[phrase.ID] = phrase
	return nil
}

func (r *stubPhraseRepo) GetByID(_ context.Context, id string) (*domain.Phrase, error) {
	phrase, ok := r.phrases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := phrase
	return &copy, nil
}

func (r *stubPhraseRepo) ListEligible(_ context.Context, filter port.PhraseFilter) ([]domain.Phrase, error) {
	excluded := make(map[string]bool, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		excluded[id] = true
	}
	var out []domain.Phrase
	for _, phrase := range r.phrases {
		if !phrase.Active || excluded[phrase.ID] {
			continue
		}
		if filter.Language != "" && phrase.Language != filter.Language {
			continue
		}
		if filter.Difficulty != "" && phrase.Difficulty != filter.Difficulty {
			continue
		}
		out = append(out, phrase)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubPhraseRepo) SetActive(_ context.Context, id string, active bool) error {
	phrase, ok := r.phrases[id]
	if !ok {
		return repository.ErrNotFound
	}
	phrase.Active = active
	r.phrases[id] = phrase
	return nil
}

//

type stubSampleRepo struct {
	samples []domain.EnrollmentSample
}

func (r *stubSampleRepo) Create(_ context.Context, sample domain.EnrollmentSample) error {
	r.samples = append(r.samples, sample)
	return nil
}

func (r *stubSampleRepo) ListBySession(_ context.Context, sessionID string) ([]domain.EnrollmentSample, error) {
	var out []domain.EnrollmentSample
	for _, sample := range r.samples {
		if sample.SessionID == sessionID {
			out = append(out, sample)
		}
	}
	return out, nil
}

func (r *stubSampleRepo) DeleteOrphaned(_ context.Context, createdBefore time.Time) (int, error) {
	kept := r.samples[:0]
	deleted := 0
	for _, sample := range r.samples {
		if sample.CreatedAt.Before(createdBefore) {
			deleted++
			continue
		}
		kept = append(kept, sample)
	}
	r.samples = kept
	return deleted, nil
}

//

type stubEnrollmentSessions struct {
	sessions map[string]domain.EnrollmentSession
}

func newStubEnrollmentSessions() *stubEnrollmentSessions {
	return &stubEnrollmentSessions{sessions: make(map[string]domain.EnrollmentSession)}
}

func (s *stubEnrollmentSessions) Save(_ context.Context, session domain.EnrollmentSession, _ time.Duration) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *stubEnrollmentSessions) Get(_ context.Context, id string) (*domain.EnrollmentSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := session
	return &copy, nil
}

func (s *stubEnrollmentSessions) Delete(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

//

type stubMultiPhraseSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.MultiPhraseSession
}

func newStubMultiPhraseSessions() *stubMultiPhraseSessions {
	return &stubMultiPhraseSessions{sessions: make(map[string]domain.MultiPhraseSession)}
}

func (s *stubMultiPhraseSessions) Save(_ context.Context, session domain.MultiPhraseSession, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := session
	copy.Steps = append([]domain.PhraseStep(nil), session.Steps...)
	s.sessions[session.ID] = copy
	return nil
}

func (s *stubMultiPhraseSessions) Get(_ context.Context, id string) (*domain.MultiPhraseSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := session
	copy.Steps = append([]domain.PhraseStep(nil), session.Steps...)
	return &copy, nil
}

// Update mirrors the store contract: the write lands only when the caller's
// version matches, and the stored copy carries the incremented version.
func (s *stubMultiPhraseSessions) Update(_ context.Context, session domain.MultiPhraseSession, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != session.Version {
		return repository.ErrConflict
	}
	copy := session
	copy.Version++
	copy.Steps = append([]domain.PhraseStep(nil), session.Steps...)
	s.sessions[session.ID] = copy
	return nil
}

func (s *stubMultiPhraseSessions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

//

type stubLockoutStore struct {
	failures map[string]int
	locked   map[string]time.Time
	now      func() time.Time
}

func newStubLockoutStore(now func() time.Time) *stubLockoutStore {
	return &stubLockoutStore{
		failures: make(map[string]int),
		locked:   make(map[string]time.Time),
		now:      now,
	}
}

func (s *stubLockoutStore) RecordFailure(_ context.Context, identityID string, maxFailures int, lockFor time.Duration) (port.FailureOutcome, error) {
	s.failures[identityID]++
	if s.failures[identityID] >= maxFailures {
		until := s.now().Add(lockFor)
		s.locked[identityID] = until
		delete(s.failures, identityID)
		return port.FailureOutcome{Failures: maxFailures, Locked: true, LockedUntil: until}, nil
	}
	return port.FailureOutcome{Failures: s.failures[identityID]}, nil
}

func (s *stubLockoutStore) ResetFailures(_ context.Context, identityID string) error {
	delete(s.failures, identityID)
	return nil
}

func (s *stubLockoutStore) IsLocked(_ context.Context, identityID string) (bool, time.Time, error) {
	until, ok := s.locked[identityID]
	if !ok || !s.now().Before(until) {
		return false, time.Time{}, nil
	}
	return true, until, nil
}

//

type stubUsageStore struct {
	recent map[string][]string
}

func newStubUsageStore() *stubUsageStore {
	return &stubUsageStore{recent: make(map[string][]string)}
}

func (s *stubUsageStore) RecordUse(_ context.Context, identityID string, phraseIDs []string, _ time.Time) error {
	reversed := make([]string, 0, len(phraseIDs))
	for i := len(phraseIDs) - 1; i >= 0; i-- {
		reversed = append(reversed, phraseIDs[i])
	}
	s.recent[identityID] = append(reversed, s.recent[identityID]...)
	return nil
}

func (s *stubUsageStore) RecentPhraseIDs(_ context.Context, identityID string, window int) ([]string, error) {
	recent := s.recent[identityID]
	if len(recent) > window {
		recent = recent[:window]
	}
	return append([]string(nil), recent...), nil
}

//

// stubScorer serves the three verification signals and the enrollment
// embedder. The signal calls run concurrently, so each keeps its own guarded
// call counter into scoreBySeq.
type stubScorer struct {
	similarity  float64
	spoofProb   float64
	phraseMatch float64
	embedding   []float64
	quality     port.QualityMetrics
	err         error

	// scoreBySeq overrides the flat scores per submission ordinal, for
	// multi-phrase sessions where each phrase needs its own signals.
	scoreBySeq []domain.SignalScores

	mu         sync.Mutex
	simCalls   int
	spoofCalls int
	matchCalls int
}

func (s *stubScorer) at(call int) domain.SignalScores {
	if call < len(s.scoreBySeq) {
		return s.scoreBySeq[call]
	}
	return domain.SignalScores{Similarity: s.similarity, SpoofProb: s.spoofProb, PhraseMatch: s.phraseMatch}
}

func (s *stubScorer) Similarity(context.Context, []byte, []float64) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := s.at(s.simCalls)
	s.simCalls++
	return scores.Similarity, nil
}

func (s *stubScorer) SpoofProbability(context.Context, []byte) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := s.at(s.spoofCalls)
	s.spoofCalls++
	return scores.SpoofProb, nil
}

func (s *stubScorer) PhraseMatch(context.Context, []byte, string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := s.at(s.matchCalls)
	s.matchCalls++
	return scores.PhraseMatch, nil
}

func (s *stubScorer) EmbedAndQuality(context.Context, []byte) ([]float64, port.QualityMetrics, error) {
	if s.err != nil {
		return nil, port.QualityMetrics{}, s.err
	}
	return s.embedding, s.quality, nil
}

//

type stubPublisher struct {
	decided   []domain.VerificationDecidedEvent
	enrolled  []domain.EnrollmentCompletedEvent
	locked    []domain.IdentityLockedEvent
	publishEr error
}

func (p *stubPublisher) PublishVerificationDecided(_ context.Context, event domain.VerificationDecidedEvent) error {
	if p.publishEr != nil {
		return p.publishEr
	}
	p.decided = append(p.decided, event)
	return nil
}

func (p *stubPublisher) PublishEnrollmentCompleted(_ context.Context, event domain.EnrollmentCompletedEvent) error {
	if p.publishEr != nil {
		return p.publishEr
	}
	p.enrolled = append(p.enrolled, event)
	return nil
}

func (p *stubPublisher) PublishIdentityLocked(_ context.Context, event domain.IdentityLockedEvent) error {
	if p.publishEr != nil {
		return p.publishEr
	}
	p.locked = append(p.locked, event)
	return nil
}

//

type stubPolicyProvider struct {
	policy domain.ThresholdPolicy
}

func (p *stubPolicyProvider) Current() domain.ThresholdPolicy {
	return p.policy
}

var errStubUnavailable = errors.New("backend unavailable")

func testTime() time.Time {
	return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}
