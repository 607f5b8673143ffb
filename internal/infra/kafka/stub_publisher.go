package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, identityID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("identity_id", identityID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishVerificationDecided logs voiceauth.verification.decided events.
func (p *StubPublisher) PublishVerificationDecided(_ context.Context, event domain.VerificationDecidedEvent) error {
	payload := map[string]any{
		"attempt_id":   event.AttemptID,
		"identity_id":  event.IdentityID,
		"challenge_id": event.ChallengeID,
		"session_id":   event.SessionID,
		"accepted":     event.Accepted,
		"reason":       event.Reason,
		"decided_at":   event.DecidedAt,
		"latency_ms":   event.Latency.Milliseconds(),
		"metadata":     event.Metadata,
	}

	identityID := ""
	if event.IdentityID != nil {
		identityID = *event.IdentityID
	}

	p.logEvent("voiceauth.verification.decided", identityID, event.DecidedAt, payload)
	return nil
}

// PublishEnrollmentCompleted logs voiceauth.enrollment.completed events.
func (p *StubPublisher) PublishEnrollmentCompleted(_ context.Context, event domain.EnrollmentCompletedEvent) error {
	payload := map[string]any{
		"identity_id":   event.IdentityID,
		"voiceprint_id": event.VoiceprintID,
		"sample_count":  event.SampleCount,
		"reenrollment":  event.Reenrollment,
		"completed_at":  event.CompletedAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("voiceauth.enrollment.completed", event.IdentityID, event.CompletedAt, payload)
	return nil
}

// PublishIdentityLocked logs voiceauth.identity.locked events.
func (p *StubPublisher) PublishIdentityLocked(_ context.Context, event domain.IdentityLockedEvent) error {
	payload := map[string]any{
		"identity_id":  event.IdentityID,
		"failures":     event.Failures,
		"locked_at":    event.LockedAt,
		"locked_until": event.LockedUntil,
		"metadata":     event.Metadata,
	}
	p.logEvent("voiceauth.identity.locked", event.IdentityID, event.LockedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
