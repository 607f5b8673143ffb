package usecase

import "errors"

var (
	// ErrInvalidTTL indicates a non-positive challenge TTL was requested.
	ErrInvalidTTL = errors.New("challenge ttl must be positive")
	// ErrChallengeNotFound indicates the challenge id is unknown.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired indicates the challenge TTL elapsed before consumption.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrChallengeAlreadyUsed indicates another caller already consumed the challenge.
	ErrChallengeAlreadyUsed = errors.New("challenge already used")
	// ErrChallengeMismatch indicates the challenge was issued for a different identity.
	ErrChallengeMismatch = errors.New("challenge issued for a different identity")
	// ErrIdentityNotFound indicates the identity id is unknown.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrNotEnrolled indicates the identity has no current voiceprint.
	ErrNotEnrolled = errors.New("identity is not enrolled")
	// ErrAlreadyEnrolled indicates a current voiceprint exists and overwrite was not forced.
	ErrAlreadyEnrolled = errors.New("identity already has a voiceprint")
	// ErrLowQuality indicates the sample failed the signal-quality floors.
	ErrLowQuality = errors.New("sample quality below floor")
	// ErrSessionNotFound indicates the session id is unknown or expired.
	ErrSessionNotFound = errors.New("session not found or expired")
	// ErrSessionFinished indicates the session already reached a terminal state.
	ErrSessionFinished = errors.New("session already finished")
	// ErrPhraseSubmitted indicates the phrase at this index was already scored.
	ErrPhraseSubmitted = errors.New("phrase already submitted")
	// ErrIncompleteSession indicates Complete was called before enough samples.
	ErrIncompleteSession = errors.New("enrollment session incomplete")
	// ErrNoEligiblePhrases indicates the active pool minus exclusions is too small.
	ErrNoEligiblePhrases = errors.New("not enough eligible phrases")
	// ErrPhraseNotFound indicates the phrase id is unknown or inactive.
	ErrPhraseNotFound = errors.New("phrase not found")
	// ErrLocked indicates the identity is temporarily locked out.
	ErrLocked = errors.New("identity locked out")
	// ErrScorerFailure indicates an external scorer failed or timed out.
	// It is never an implicit accept: the enclosing attempt is rejected.
	ErrScorerFailure = errors.New("scorer unavailable")
)
