package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	IdentityID string           `json:"identity_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Version    string           `json:"version"`
	Payload    any              `json:"payload"`
	Metadata   envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, identityID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:    id,
		EventType:  eventType,
		IdentityID: identityID,
		Timestamp:  ts.UTC(),
		Version:    schemaVersion,
		Payload:    payload,
		Metadata:   metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishVerificationDecided publishes voiceauth.verification.decided events.
func (p *EventPublisher) PublishVerificationDecided(ctx context.Context, event domain.VerificationDecidedEvent) error {
	payload := struct {
		AttemptID   string         `json:"attempt_id"`
		IdentityID  *string        `json:"identity_id,omitempty"`
		ChallengeID string         `json:"challenge_id"`
		SessionID   *string        `json:"session_id,omitempty"`
		Accepted    bool           `json:"accepted"`
		Reason      string         `json:"reason"`
		DecidedAt   time.Time      `json:"decided_at"`
		LatencyMS   int64          `json:"latency_ms"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		AttemptID:   event.AttemptID,
		IdentityID:  event.IdentityID,
		ChallengeID: event.ChallengeID,
		SessionID:   event.SessionID,
		Accepted:    event.Accepted,
		Reason:      event.Reason,
		DecidedAt:   event.DecidedAt.UTC(),
		LatencyMS:   event.Latency.Milliseconds(),
		Metadata:    event.Metadata,
	}

	identityID := ""
	if event.IdentityID != nil {
		identityID = *event.IdentityID
	}

	return p.publish(ctx, event.EventID, "voiceauth.verification.decided", identityID, event.DecidedAt, payload)
}

// PublishEnrollmentCompleted publishes voiceauth.enrollment.completed events.
func (p *EventPublisher) PublishEnrollmentCompleted(ctx context.Context, event domain.EnrollmentCompletedEvent) error {
	payload := struct {
		IdentityID   string         `json:"identity_id"`
		VoiceprintID string         `json:"voiceprint_id"`
		SampleCount  int            `json:"sample_count"`
		Reenrollment bool           `json:"reenrollment"`
		CompletedAt  time.Time      `json:"completed_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		IdentityID:   event.IdentityID,
		VoiceprintID: event.VoiceprintID,
		SampleCount:  event.SampleCount,
		Reenrollment: event.Reenrollment,
		CompletedAt:  event.CompletedAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "voiceauth.enrollment.completed", event.IdentityID, event.CompletedAt, payload)
}

// PublishIdentityLocked publishes voiceauth.identity.locked events.
func (p *EventPublisher) PublishIdentityLocked(ctx context.Context, event domain.IdentityLockedEvent) error {
	payload := struct {
		IdentityID  string         `json:"identity_id"`
		Failures    int            `json:"failures"`
		LockedAt    time.Time      `json:"locked_at"`
		LockedUntil time.Time      `json:"locked_until"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		IdentityID:  event.IdentityID,
		Failures:    event.Failures,
		LockedAt:    event.LockedAt.UTC(),
		LockedUntil: event.LockedUntil.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "voiceauth.identity.locked", event.IdentityID, event.LockedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
