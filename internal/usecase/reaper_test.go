package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

func TestReaperSweepPurgesAllTargets(t *testing.T) {
	now := testTime()
	clock := fixedClock(now)

	challenges := newStubChallengeRepo(
		domain.Challenge{ID: "stale", CreatedAt: now.Add(-20 * 24 * time.Hour), ExpiresAt: now.Add(-20 * 24 * time.Hour)},
		domain.Challenge{ID: "fresh", CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(4 * time.Minute)},
	)
	challengeSvc := NewChallengeService(challenges, newStubPhraseRepo(), nil).
		WithRetention(14 * 24 * time.Hour).
		WithClock(clock)

	attempts := newStubAttemptRepo()
	identityID := "identity-1"
	oldDecided := now.Add(-20 * 24 * time.Hour)
	accepted := false
	attempts.Create(context.Background(), domain.VerificationAttempt{
		ID:         "old-attempt",
		IdentityID: &identityID,
		Decided:    true,
		Accepted:   &accepted,
		DecidedAt:  &oldDecided,
	})
	attempts.Create(context.Background(), domain.VerificationAttempt{
		ID:         "open-attempt",
		IdentityID: &identityID,
	})

	samples := &stubSampleRepo{}
	samples.Create(context.Background(), domain.EnrollmentSample{ID: "orphan", CreatedAt: now.Add(-48 * time.Hour)})
	samples.Create(context.Background(), domain.EnrollmentSample{ID: "recent", CreatedAt: now.Add(-time.Hour)})

	reaper := NewReaperService(challengeSvc, attempts, samples, nil).
		WithRetention(14*24*time.Hour, 24*time.Hour).
		WithClock(clock)

	reaper.Sweep(context.Background())

	if _, err := challenges.GetByID(context.Background(), "stale"); err == nil {
		t.Error("expected stale challenge purged")
	}
	if _, err := challenges.GetByID(context.Background(), "fresh"); err != nil {
		t.Errorf("fresh challenge should survive: %v", err)
	}

	if _, err := attempts.GetByID(context.Background(), "old-attempt"); err == nil {
		t.Error("expected decided attempt past retention purged")
	}
	if _, err := attempts.GetByID(context.Background(), "open-attempt"); err != nil {
		t.Errorf("undecided attempt must never be purged: %v", err)
	}

	if len(samples.samples) != 1 || samples.samples[0].ID != "recent" {
		t.Errorf("expected only the recent sample to survive, got %+v", samples.samples)
	}
}
