package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, asyncProducer *fakeAsyncProducer) *EventPublisher {
	t.Helper()

	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "voiceauth",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	return NewEventPublisher(producer, config.AppSettings{
		Name: "voiceauth",
		Env:  "test",
	}, zaptest.NewLogger(t))
}

func TestPublishVerificationDecided(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	decidedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	identityID := "id-1"
	event := domain.VerificationDecidedEvent{
		EventID:     "event-123",
		AttemptID:   "attempt-456",
		IdentityID:  &identityID,
		ChallengeID: "ch-789",
		Accepted:    false,
		Reason:      string(domain.ReasonLowSimilarity),
		DecidedAt:   decidedAt,
		Latency:     340 * time.Millisecond,
	}

	if err := publisher.PublishVerificationDecided(context.Background(), event); err != nil {
		t.Fatalf("PublishVerificationDecided returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "voiceauth.verification.decided" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "voiceauth.verification.decided" {
			t.Fatalf("unexpected event_type: %v", got)
		}
		if got := envelope["identity_id"]; got != identityID {
			t.Fatalf("unexpected identity_id: %v", got)
		}
		if got := envelope["event_id"]; got != "event-123" {
			t.Fatalf("unexpected event_id: %v", got)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not an object: %T", envelope["payload"])
		}
		if got := payload["reason"]; got != "low_similarity" {
			t.Fatalf("unexpected reason: %v", got)
		}
		if got := payload["latency_ms"]; got != float64(340) {
			t.Fatalf("unexpected latency_ms: %v", got)
		}
	default:
		t.Fatalf("expected message on producer input channel")
	}
}

func TestPublishEnrollmentCompleted(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	completedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	event := domain.EnrollmentCompletedEvent{
		IdentityID:   "id-1",
		VoiceprintID: "vp-1",
		SampleCount:  5,
		Reenrollment: true,
		CompletedAt:  completedAt,
	}

	if err := publisher.PublishEnrollmentCompleted(context.Background(), event); err != nil {
		t.Fatalf("PublishEnrollmentCompleted returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "voiceauth.enrollment.completed" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		// An omitted event id is filled with a generated one.
		if got, _ := envelope["event_id"].(string); got == "" {
			t.Fatalf("expected generated event_id, got %v", envelope["event_id"])
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not an object: %T", envelope["payload"])
		}
		if got := payload["sample_count"]; got != float64(5) {
			t.Fatalf("unexpected sample_count: %v", got)
		}
		if got := payload["reenrollment"]; got != true {
			t.Fatalf("unexpected reenrollment: %v", got)
		}
	default:
		t.Fatalf("expected message on producer input channel")
	}
}

func TestPublishIdentityLocked(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	lockedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	event := domain.IdentityLockedEvent{
		IdentityID:  "id-1",
		Failures:    3,
		LockedAt:    lockedAt,
		LockedUntil: lockedAt.Add(15 * time.Minute),
	}

	if err := publisher.PublishIdentityLocked(context.Background(), event); err != nil {
		t.Fatalf("PublishIdentityLocked returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "voiceauth.identity.locked" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}
	default:
		t.Fatalf("expected message on producer input channel")
	}
}
