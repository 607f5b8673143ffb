package port

import (
	"context"
	"time"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

// EnrollmentSessionStore keeps in-flight enrollment sessions in volatile
// storage. Expiry is enforced by the store's TTL; a vanished session reads as
// not found and must be restarted.
type EnrollmentSessionStore interface {
	Save(ctx context.Context, session domain.EnrollmentSession, ttl time.Duration) error
	Get(ctx context.Context, id string) (*domain.EnrollmentSession, error)
	Delete(ctx context.Context, id string) error
}

// MultiPhraseSessionStore keeps in-flight multi-phrase verification sessions.
type MultiPhraseSessionStore interface {
	Save(ctx context.Context, session domain.MultiPhraseSession, ttl time.Duration) error
	Get(ctx context.Context, id string) (*domain.MultiPhraseSession, error)
	// Update replaces a stored session only when the stored version equals
	// session.Version; the write carries Version+1. It returns
	// repository.ErrConflict when a concurrent writer got there first and
	// repository.ErrNotFound when the session is gone.
	Update(ctx context.Context, session domain.MultiPhraseSession, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
