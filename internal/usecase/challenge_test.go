package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestChallengeIssueBindsPhraseText(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	phrases := newStubPhraseRepo(domain.Phrase{
		ID:         "phrase-1",
		Text:       "the quick brown fox",
		Language:   "en",
		Difficulty: domain.PhraseDifficultyMedium,
		Active:     true,
	})
	challenges := newStubChallengeRepo()
	svc := NewChallengeService(challenges, phrases, nil).WithClock(fixedClock(now))

	identityID := "identity-1"
	challenge, err := svc.Issue(context.Background(), IssueInput{IdentityID: &identityID, PhraseID: "phrase-1"})
	if err != nil {
		t.Fatalf("issue challenge: %v", err)
	}

	if challenge.PhraseText != "the quick brown fox" {
		t.Errorf("expected phrase text bound to challenge, got %q", challenge.PhraseText)
	}
	if !challenge.ExpiresAt.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("expected default 5m ttl, got expiry %s", challenge.ExpiresAt)
	}
	if challenge.IdentityID == nil || *challenge.IdentityID != identityID {
		t.Errorf("expected challenge bound to %s", identityID)
	}
}

func TestChallengeIssueRejectsNegativeTTL(t *testing.T) {
	svc := NewChallengeService(newStubChallengeRepo(), newStubPhraseRepo(), nil)

	_, err := svc.Issue(context.Background(), IssueInput{PhraseID: "phrase-1", TTL: -time.Minute})
	if !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestChallengeIssueRejectsInactivePhrase(t *testing.T) {
	phrases := newStubPhraseRepo(domain.Phrase{ID: "phrase-1", Text: "retired phrase", Active: false})
	svc := NewChallengeService(newStubChallengeRepo(), phrases, nil)

	_, err := svc.Issue(context.Background(), IssueInput{PhraseID: "phrase-1"})
	if !errors.Is(err, ErrPhraseNotFound) {
		t.Fatalf("expected ErrPhraseNotFound, got %v", err)
	}
}

func TestChallengeConsumeIsSingleUse(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	challenges := newStubChallengeRepo(domain.Challenge{
		ID:        "ch-1",
		PhraseID:  "phrase-1",
		CreatedAt: now.Add(-time.Minute),
		ExpiresAt: now.Add(4 * time.Minute),
	})
	svc := NewChallengeService(challenges, newStubPhraseRepo(), nil).WithClock(fixedClock(now))

	first, err := svc.Consume(context.Background(), "ch-1")
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if !first.Used() {
		t.Error("expected consumed challenge to report used")
	}

	_, err = svc.Consume(context.Background(), "ch-1")
	if !errors.Is(err, ErrChallengeAlreadyUsed) {
		t.Fatalf("expected ErrChallengeAlreadyUsed on replay, got %v", err)
	}
}

func TestChallengeConsumeClassifiesExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	challenges := newStubChallengeRepo(domain.Challenge{
		ID:        "ch-1",
		PhraseID:  "phrase-1",
		CreatedAt: now.Add(-10 * time.Minute),
		ExpiresAt: now.Add(-5 * time.Minute),
	})
	svc := NewChallengeService(challenges, newStubPhraseRepo(), nil).WithClock(fixedClock(now))

	_, err := svc.Consume(context.Background(), "ch-1")
	if !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestChallengeConsumeUnknownID(t *testing.T) {
	svc := NewChallengeService(newStubChallengeRepo(), newStubPhraseRepo(), nil)

	_, err := svc.Consume(context.Background(), "no-such-challenge")
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestChallengeReapRemovesOldFinished(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	challenges := newStubChallengeRepo(
		domain.Challenge{ID: "old", CreatedAt: now.Add(-15 * 24 * time.Hour), ExpiresAt: now.Add(-15 * 24 * time.Hour)},
		domain.Challenge{ID: "fresh", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(4 * time.Minute)},
	)
	svc := NewChallengeService(challenges, newStubPhraseRepo(), nil).WithClock(fixedClock(now))

	deleted, err := svc.Reap(context.Background())
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 reaped challenge, got %d", deleted)
	}
	if _, err := challenges.GetByID(context.Background(), "fresh"); err != nil {
		t.Errorf("expected fresh challenge to survive: %v", err)
	}
}
