package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

func TestLockoutTripsAtFailureCeiling(t *testing.T) {
	now := testTime()
	store := newStubLockoutStore(fixedClock(now))
	identities := newStubIdentityRepo(domain.Identity{ID: "identity-1", Status: domain.IdentityStatusEnrolled})
	publisher := &stubPublisher{}
	lockFired := 0

	svc := NewLockoutService(store, identities, publisher, nil).
		WithLimits(3, 15*time.Minute).
		WithClock(fixedClock(now)).
		WithLockObserver(func() { lockFired++ })

	for i := 0; i < 2; i++ {
		state, err := svc.RecordOutcome(context.Background(), "identity-1", false)
		if err != nil {
			t.Fatalf("record failure %d: %v", i+1, err)
		}
		if state.Locked {
			t.Fatalf("locked after %d failures, ceiling is 3", i+1)
		}
	}

	state, err := svc.RecordOutcome(context.Background(), "identity-1", false)
	if err != nil {
		t.Fatalf("record third failure: %v", err)
	}
	if !state.Locked {
		t.Fatal("expected lock at third consecutive failure")
	}
	if want := now.Add(15 * time.Minute); !state.LockedUntil.Equal(want) {
		t.Errorf("expected lock until %s, got %s", want, state.LockedUntil)
	}

	if len(publisher.locked) != 1 {
		t.Fatalf("expected one lock event, got %d", len(publisher.locked))
	}
	if publisher.locked[0].IdentityID != "identity-1" {
		t.Errorf("lock event for wrong identity: %s", publisher.locked[0].IdentityID)
	}
	if lockFired != 1 {
		t.Errorf("expected lock observer to fire once, fired %d times", lockFired)
	}

	locked, until, err := svc.IsLocked(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if !locked || !until.Equal(now.Add(15*time.Minute)) {
		t.Errorf("expected active lock until %s, got locked=%t until=%s", now.Add(15*time.Minute), locked, until)
	}
}

func TestLockoutSuccessClearsFailures(t *testing.T) {
	now := testTime()
	store := newStubLockoutStore(fixedClock(now))
	identities := newStubIdentityRepo(domain.Identity{ID: "identity-1", Status: domain.IdentityStatusEnrolled})

	svc := NewLockoutService(store, identities, &stubPublisher{}, nil).
		WithLimits(3, 15*time.Minute).
		WithClock(fixedClock(now))

	for i := 0; i < 2; i++ {
		if _, err := svc.RecordOutcome(context.Background(), "identity-1", false); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if _, err := svc.RecordOutcome(context.Background(), "identity-1", true); err != nil {
		t.Fatalf("record success: %v", err)
	}

	// The counter restarted, so two more failures stay below the ceiling.
	for i := 0; i < 2; i++ {
		state, err := svc.RecordOutcome(context.Background(), "identity-1", false)
		if err != nil {
			t.Fatalf("record failure after reset: %v", err)
		}
		if state.Locked {
			t.Fatalf("locked after %d post-reset failures", i+1)
		}
	}
}

func TestLockoutMirrorsStateOntoIdentity(t *testing.T) {
	now := testTime()
	store := newStubLockoutStore(fixedClock(now))
	identities := newStubIdentityRepo(domain.Identity{ID: "identity-1", Status: domain.IdentityStatusEnrolled})

	svc := NewLockoutService(store, identities, &stubPublisher{}, nil).
		WithLimits(2, 15*time.Minute).
		WithClock(fixedClock(now))

	if _, err := svc.RecordOutcome(context.Background(), "identity-1", false); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if _, err := svc.RecordOutcome(context.Background(), "identity-1", false); err != nil {
		t.Fatalf("record lock failure: %v", err)
	}

	if len(identities.lockCalls) != 2 {
		t.Fatalf("expected 2 mirror calls, got %d", len(identities.lockCalls))
	}
	last := identities.lockCalls[1]
	if last.failures != 0 || last.lockedUntil == nil {
		t.Errorf("expected mirrored lock with reset counter, got failures=%d until=%v", last.failures, last.lockedUntil)
	}
}

func TestLockoutIgnoresAnonymousAttempts(t *testing.T) {
	store := newStubLockoutStore(fixedClock(testTime()))
	svc := NewLockoutService(store, newStubIdentityRepo(), &stubPublisher{}, nil)

	state, err := svc.RecordOutcome(context.Background(), "", false)
	if err != nil {
		t.Fatalf("record anonymous outcome: %v", err)
	}
	if state.Failures != 0 || state.Locked {
		t.Errorf("expected no-op for anonymous attempt, got %+v", state)
	}
	if len(store.failures) != 0 {
		t.Error("expected no counter for anonymous attempt")
	}
}
