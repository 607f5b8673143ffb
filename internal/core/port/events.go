package port

import (
	"context"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishVerificationDecided(ctx context.Context, event domain.VerificationDecidedEvent) error
	PublishEnrollmentCompleted(ctx context.Context, event domain.EnrollmentCompletedEvent) error
	PublishIdentityLocked(ctx context.Context, event domain.IdentityLockedEvent) error
}
