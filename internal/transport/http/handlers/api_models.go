package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// PhraseSummary describes one pool phrase returned by the API.
type PhraseSummary struct {
	ID         string                  `json:"id"`
	Text       string                  `json:"text"`
	Language   string                  `json:"language"`
	Difficulty domain.PhraseDifficulty `json:"difficulty"`
}

// NextPhrasesResponse carries the phrases selected for a caller.
type NextPhrasesResponse struct {
	Phrases []PhraseSummary `json:"phrases"`
}

// CreatePhraseRequest defines the payload for adding a pool phrase.
type CreatePhraseRequest struct {
	Text       string `json:"text" binding:"required"`
	Language   string `json:"language"`
	Difficulty string `json:"difficulty" binding:"required"`
}

// PolicyResponse describes the active threshold policy.
type PolicyResponse struct {
	Strategy         string  `json:"strategy"`
	SpeakerThreshold float64 `json:"speaker_threshold"`
	SpoofThreshold   float64 `json:"spoof_threshold"`
	TextThreshold    float64 `json:"text_threshold"`
	PhraseCount      int     `json:"multi_phrase_count"`
	MultiThreshold   float64 `json:"multi_threshold"`
	SpoofCutoff      float64 `json:"multi_spoof_cutoff"`
}

// PolicyUpdateRequest selects a configured threshold strategy by name.
type PolicyUpdateRequest struct {
	Strategy string `json:"strategy" binding:"required"`
}

// ChallengeIssueRequest defines the payload for issuing a challenge.
type ChallengeIssueRequest struct {
	IdentityID *string `json:"identity_id,omitempty"`
	PhraseID   string  `json:"phrase_id" binding:"required"`
	TTLSeconds int     `json:"ttl_seconds"`
}

// ChallengeResponse describes an issued challenge.
type ChallengeResponse struct {
	ID         string    `json:"id"`
	IdentityID *string   `json:"identity_id,omitempty"`
	PhraseID   string    `json:"phrase_id"`
	PhraseText string    `json:"phrase_text"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// EnrollmentStartRequest defines the payload to open an enrollment session.
type EnrollmentStartRequest struct {
	IdentityID      string `json:"identity_id"`
	ExternalRef     string `json:"external_ref"`
	RequiredSamples int    `json:"required_samples"`
	ForceOverwrite  bool   `json:"force_overwrite"`
}

// EnrollmentSessionResponse describes an enrollment session.
type EnrollmentSessionResponse struct {
	SessionID       string    `json:"session_id"`
	IdentityID      string    `json:"identity_id"`
	RequiredSamples int       `json:"required_samples"`
	SamplesDone     int       `json:"samples_done"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// AddSampleRequest defines the payload for one enrollment sample.
type AddSampleRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Audio       string `json:"audio" binding:"required"`
}

// AddSampleResponse reports enrollment progress after one sample.
type AddSampleResponse struct {
	SamplesCompleted int     `json:"samples_completed"`
	Complete         bool    `json:"complete"`
	SNRdB            float64 `json:"snr_db"`
	DurationMS       int64   `json:"duration_ms"`
}

// VoiceprintResponse describes the stored voiceprint after completion.
type VoiceprintResponse struct {
	VoiceprintID string    `json:"voiceprint_id"`
	IdentityID   string    `json:"identity_id"`
	SampleCount  int       `json:"sample_count"`
	ModelVersion string    `json:"model_version,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// VerifyRequest defines the payload for single-phrase verification.
type VerifyRequest struct {
	IdentityID  string `json:"identity_id" binding:"required"`
	ChallengeID string `json:"challenge_id" binding:"required"`
	Audio       string `json:"audio" binding:"required"`
}

// SignalScoresPayload is the per-signal score breakdown in responses.
type SignalScoresPayload struct {
	Similarity  float64 `json:"similarity"`
	SpoofProb   float64 `json:"spoof_prob"`
	PhraseMatch float64 `json:"phrase_match"`
}

// AttemptResponse describes a verification attempt outcome.
type AttemptResponse struct {
	AttemptID string               `json:"attempt_id"`
	Accepted  bool                 `json:"accepted"`
	Reason    string               `json:"reason"`
	Scores    *SignalScoresPayload `json:"scores,omitempty"`
	LatencyMS int64                `json:"latency_ms"`
	DecidedAt *time.Time           `json:"decided_at,omitempty"`
}

// StartVerificationSessionRequest opens a multi-phrase session.
type StartVerificationSessionRequest struct {
	IdentityID  string `json:"identity_id" binding:"required"`
	PhraseCount int    `json:"phrase_count"`
}

// SessionStepPayload describes one phrase step of a multi-phrase session.
type SessionStepPayload struct {
	Index       int    `json:"index"`
	ChallengeID string `json:"challenge_id"`
	PhraseID    string `json:"phrase_id"`
	Submitted   bool   `json:"submitted"`
}

// VerificationSessionResponse describes a multi-phrase session.
type VerificationSessionResponse struct {
	SessionID  string               `json:"session_id"`
	IdentityID string               `json:"identity_id"`
	State      string               `json:"state"`
	Steps      []SessionStepPayload `json:"steps"`
	Challenges []ChallengeResponse  `json:"challenges,omitempty"`
	ExpiresAt  time.Time            `json:"expires_at"`
}

// SubmitPhraseRequest defines the payload for one phrase submission.
type SubmitPhraseRequest struct {
	Audio string `json:"audio" binding:"required"`
}

// SubmitPhraseResponse reports session state after one submission.
type SubmitPhraseResponse struct {
	State        string  `json:"state"`
	Submitted    int     `json:"submitted"`
	Final        bool    `json:"final"`
	Accepted     bool    `json:"accepted"`
	Reason       string  `json:"reason,omitempty"`
	AverageScore float64 `json:"average_score"`
}

// LockStateResponse describes the lockout ledger view of an identity.
type LockStateResponse struct {
	IdentityID  string     `json:"identity_id"`
	Locked      bool       `json:"locked"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// AttemptListResponse carries a page of ledger attempts.
type AttemptListResponse struct {
	Attempts []AttemptRecordPayload `json:"attempts"`
}

// AttemptRecordPayload is one ledger row in list responses.
type AttemptRecordPayload struct {
	AttemptID   string               `json:"attempt_id"`
	ChallengeID string               `json:"challenge_id"`
	SessionID   *string              `json:"session_id,omitempty"`
	Decided     bool                 `json:"decided"`
	Accepted    *bool                `json:"accepted,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Scores      *SignalScoresPayload `json:"scores,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	DecidedAt   *time.Time           `json:"decided_at,omitempty"`
}

// HealthResponse reports liveness plus per-dependency readiness.
type HealthResponse struct {
	Status    string            `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func newSignalScoresPayload(scores *domain.SignalScores) *SignalScoresPayload {
	if scores == nil {
		return nil
	}
	return &SignalScoresPayload{
		Similarity:  scores.Similarity,
		SpoofProb:   scores.SpoofProb,
		PhraseMatch: scores.PhraseMatch,
	}
}

func newChallengeResponse(challenge domain.Challenge) ChallengeResponse {
	return ChallengeResponse{
		ID:         challenge.ID,
		IdentityID: challenge.IdentityID,
		PhraseID:   challenge.PhraseID,
		PhraseText: challenge.PhraseText,
		ExpiresAt:  challenge.ExpiresAt,
	}
}

func newAttemptResponse(attempt *domain.VerificationAttempt) *AttemptResponse {
	if attempt == nil {
		return nil
	}
	accepted := false
	if attempt.Accepted != nil {
		accepted = *attempt.Accepted
	}
	return &AttemptResponse{
		AttemptID: attempt.ID,
		Accepted:  accepted,
		Reason:    string(attempt.Reason),
		Scores:    newSignalScoresPayload(attempt.Scores),
		LatencyMS: attempt.Latency.Milliseconds(),
		DecidedAt: attempt.DecidedAt,
	}
}

func newSessionResponse(session domain.MultiPhraseSession, challenges []domain.Challenge) VerificationSessionResponse {
	steps := make([]SessionStepPayload, 0, len(session.Steps))
	for i, step := range session.Steps {
		steps = append(steps, SessionStepPayload{
			Index:       i,
			ChallengeID: step.ChallengeID,
			PhraseID:    step.PhraseID,
			Submitted:   step.Submitted,
		})
	}

	resp := VerificationSessionResponse{
		SessionID:  session.ID,
		IdentityID: session.IdentityID,
		State:      string(session.State),
		Steps:      steps,
		ExpiresAt:  session.ExpiresAt,
	}
	for _, challenge := range challenges {
		resp.Challenges = append(resp.Challenges, newChallengeResponse(challenge))
	}
	return resp
}
