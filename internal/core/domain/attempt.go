package domain

import "time"

// DecisionReason is the coarse outcome code surfaced to callers. Score details
// stay internal; clients only ever see accept/reject plus one of these.
type DecisionReason string

const (
	ReasonOK               DecisionReason = "ok"
	ReasonLowSimilarity    DecisionReason = "low_similarity"
	ReasonSpoof            DecisionReason = "spoof"
	ReasonBadPhrase        DecisionReason = "bad_phrase"
	ReasonSpoofDetected    DecisionReason = "spoof_detected"
	ReasonLowAverage       DecisionReason = "low_average"
	ReasonExpiredChallenge DecisionReason = "expired_challenge"
	ReasonNotEnrolled      DecisionReason = "not_enrolled"
	ReasonLocked           DecisionReason = "locked"
	ReasonError            DecisionReason = "error"
)

// SignalScores bundles the three independent scorer outputs for one utterance.
type SignalScores struct {
	Similarity  float64
	SpoofProb   float64
	PhraseMatch float64
}

// VerificationAttempt records one decision instance. Attempts are append-only:
// once Decided is set the record is never edited, only purged by retention.
//
// Invariant: Decided == false implies Accepted == nil; Decided == true
// implies Accepted != nil.
type VerificationAttempt struct {
	ID          string
	IdentityID  *string
	ChallengeID string
	SessionID   *string
	Decided     bool
	Accepted    *bool
	Reason      DecisionReason
	Scores      *SignalScores
	Latency     time.Duration
	CreatedAt   time.Time
	DecidedAt   *time.Time
}

// MultiPhraseState is the terminal state of a multi-phrase session.
type MultiPhraseState string

const (
	MultiPhrasePending   MultiPhraseState = "pending"
	MultiPhraseCompleted MultiPhraseState = "completed"
	MultiPhraseRejected  MultiPhraseState = "rejected"
)

// PhraseStep is one issued phrase of a multi-phrase session together with its
// per-phrase composite score once submitted.
type PhraseStep struct {
	ChallengeID string
	PhraseID    string
	Submitted   bool
	Score       float64
}

// MultiPhraseSession is an in-progress multi-step verification. It lives only
// for the duration of the exchange; the durable trace is the resulting
// VerificationAttempt records.
type MultiPhraseSession struct {
	ID         string
	IdentityID string
	Steps      []PhraseStep
	State      MultiPhraseState
	// Version counts committed writes; stores reject a save whose version
	// does not match the stored one, so concurrent submissions cannot
	// overwrite each other's steps.
	Version   int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SubmittedCount returns how many phrases have been scored so far.
func (s MultiPhraseSession) SubmittedCount() int {
	n := 0
	for _, step := range s.Steps {
		if step.Submitted {
			n++
		}
	}
	return n
}

// AverageScore returns the mean of the submitted per-phrase scores.
func (s MultiPhraseSession) AverageScore() float64 {
	sum, n := 0.0, 0
	for _, step := range s.Steps {
		if step.Submitted {
			sum += step.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
