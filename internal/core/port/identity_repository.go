package port

import (
	"context"
	"time"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

// IdentityRepository exposes persistence behavior for biometric principals.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	UpdateStatus(ctx context.Context, id string, status domain.IdentityStatus) error
	// UpdateLockState mirrors the ledger's counter and lock-until onto the
	// identity row for audit; the authoritative state lives in LockoutStore.
	UpdateLockState(ctx context.Context, id string, failures int, lockedUntil *time.Time) error
}
