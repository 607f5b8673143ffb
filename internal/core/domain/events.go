package domain

import "time"

// VerificationDecidedEvent represents the payload for
// voiceauth.verification.decided messages.
type VerificationDecidedEvent struct {
	EventID     string
	AttemptID   string
	IdentityID  *string
	ChallengeID string
	SessionID   *string
	Accepted    bool
	Reason      string
	DecidedAt   time.Time
	Latency     time.Duration
	Metadata    map[string]any
}

// EnrollmentCompletedEvent represents the payload for
// voiceauth.enrollment.completed messages.
type EnrollmentCompletedEvent struct {
	EventID      string
	IdentityID   string
	VoiceprintID string
	SampleCount  int
	Reenrollment bool
	CompletedAt  time.Time
	Metadata     map[string]any
}

// IdentityLockedEvent represents the payload for
// voiceauth.identity.locked messages.
type IdentityLockedEvent struct {
	EventID     string
	IdentityID  string
	Failures    int
	LockedAt    time.Time
	LockedUntil time.Time
	Metadata    map[string]any
}
