package usecase

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
)

const (
	defaultMaxFailures     = 3
	defaultLockoutDuration = 15 * time.Minute
)

// LockState summarizes the ledger state for an identity after an outcome.
type LockState struct {
	Failures    int
	Locked      bool
	LockedUntil time.Time
}

// LockoutService tracks consecutive verification failures and enforces
// temporary account lockout. Counter updates are atomic per identity in the
// backing store; there is no global lock across identities.
type LockoutService struct {
	store        port.LockoutStore
	identities   port.IdentityRepository
	events       port.EventPublisher
	logger       *zap.Logger
	now          func() time.Time
	maxFailures  int
	lockDuration time.Duration
	onLock       func()
}

// NewLockoutService constructs a LockoutService.
func NewLockoutService(store port.LockoutStore, identities port.IdentityRepository, events port.EventPublisher, logger *zap.Logger) *LockoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockoutService{
		store:        store,
		identities:   identities,
		events:       events,
		logger:       logger,
		now:          time.Now,
		maxFailures:  defaultMaxFailures,
		lockDuration: defaultLockoutDuration,
	}
}

// WithLimits overrides the failure ceiling and lockout duration.
func (s *LockoutService) WithLimits(maxFailures int, lockDuration time.Duration) *LockoutService {
	if maxFailures > 0 {
		s.maxFailures = maxFailures
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
	return s
}

// WithLockObserver registers a callback invoked whenever an identity trips
// the failure ceiling.
func (s *LockoutService) WithLockObserver(observe func()) *LockoutService {
	s.onLock = observe
	return s
}

// WithClock overrides the clock, used in tests.
func (s *LockoutService) WithClock(clock func() time.Time) *LockoutService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// RecordOutcome updates the consecutive-failure ledger for a decided attempt.
// A single success clears prior failures unconditionally. Reaching the
// failure ceiling sets the lock, resets the counter, and publishes a lock
// event. Anonymous attempts (empty identity id) are ignored.
func (s *LockoutService) RecordOutcome(ctx context.Context, identityID string, accepted bool) (*LockState, error) {
	if identityID == "" {
		return &LockState{}, nil
	}

	if accepted {
		if err := s.store.ResetFailures(ctx, identityID); err != nil {
			return nil, fmt.Errorf("reset failures: %w", err)
		}
		s.mirrorLockState(ctx, identityID, 0, nil)
		return &LockState{}, nil
	}

	outcome, err := s.store.RecordFailure(ctx, identityID, s.maxFailures, s.lockDuration)
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}

	state := &LockState{
		Failures:    outcome.Failures,
		Locked:      outcome.Locked,
		LockedUntil: outcome.LockedUntil,
	}

	if outcome.Locked {
		until := outcome.LockedUntil
		s.mirrorLockState(ctx, identityID, 0, &until)
		s.publishLocked(ctx, identityID, outcome)
		if s.onLock != nil {
			s.onLock()
		}
	} else {
		s.mirrorLockState(ctx, identityID, outcome.Failures, nil)
	}

	return state, nil
}

// IsLocked reports whether the identity is currently locked out and until when.
func (s *LockoutService) IsLocked(ctx context.Context, identityID string) (bool, time.Time, error) {
	if identityID == "" {
		return false, time.Time{}, nil
	}
	locked, until, err := s.store.IsLocked(ctx, identityID)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("check lock: %w", err)
	}
	return locked, until, nil
}

func (s *LockoutService) mirrorLockState(ctx context.Context, identityID string, failures int, until *time.Time) {
	if s.identities == nil {
		return
	}
	if err := s.identities.UpdateLockState(ctx, identityID, failures, until); err != nil {
		s.logger.Warn("mirror lock state failed", zap.String("identity_id", identityID), zap.Error(err))
	}
}

func (s *LockoutService) publishLocked(ctx context.Context, identityID string, outcome port.FailureOutcome) {
	if s.events == nil {
		return
	}
	event := domain.IdentityLockedEvent{
		EventID:     uuid.NewString(),
		IdentityID:  identityID,
		Failures:    outcome.Failures,
		LockedAt:    s.now().UTC(),
		LockedUntil: outcome.LockedUntil,
	}
	if err := s.events.PublishIdentityLocked(ctx, event); err != nil {
		s.logger.Warn("publish identity locked failed", zap.String("identity_id", identityID), zap.Error(err))
	}
}
