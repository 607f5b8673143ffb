package domain

import "time"

// IdentityStatus enumerates possible biometric principal states.
type IdentityStatus string

const (
	IdentityStatusPending  IdentityStatus = "pending"
	IdentityStatusEnrolled IdentityStatus = "enrolled"
	IdentityStatusRetired  IdentityStatus = "retired"
)

// Identity mirrors the persisted representation in the identities table.
type Identity struct {
	ID                  string
	ExternalRef         *string
	Status              IdentityStatus
	EnrollmentSamples   int
	ConsecutiveFailures int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Enrolled reports whether the identity has completed enrollment.
func (i Identity) Enrolled() bool {
	return i.Status == IdentityStatusEnrolled
}

// EnrollmentSample captures one accepted raw-audio-derived embedding.
// Samples are immutable once created; later samples supersede, never mutate.
type EnrollmentSample struct {
	ID         string
	IdentityID string
	SessionID  string
	Embedding  []float64
	SNRdB      float64
	Duration   time.Duration
	CreatedAt  time.Time
}

// Voiceprint is the enrolled template: a normalized aggregate embedding plus
// provenance metadata. At most one current voiceprint exists per identity.
type Voiceprint struct {
	ID           string
	IdentityID   string
	Embedding    []float64
	SampleCount  int
	ModelVersion string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VoiceprintHistoryEntry is an append-only record of a replaced voiceprint.
// Every replacement is written to history before the current row is
// overwritten, so templates can be audited and rolled back.
type VoiceprintHistoryEntry struct {
	ID           string
	IdentityID   string
	VoiceprintID string
	Embedding    []float64
	SampleCount  int
	ModelVersion string
	CreatedAt    time.Time
	RetiredAt    time.Time
}

// EnrollmentSession tracks an in-progress enrollment exchange. Sessions live
// in volatile storage with a TTL; an expired session is restarted, never
// resumed, and its samples are discarded by the reaper.
type EnrollmentSession struct {
	ID              string
	IdentityID      string
	RequiredSamples int
	SamplesDone     int
	ForceOverwrite  bool
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Complete reports whether the session has collected enough samples.
func (s EnrollmentSession) Complete() bool {
	return s.SamplesDone >= s.RequiredSamples
}
