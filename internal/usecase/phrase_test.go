package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

func mediumPhrase(id, text string) domain.Phrase {
	return domain.Phrase{ID: id, Text: text, Language: "en", Difficulty: domain.PhraseDifficultyMedium, Active: true}
}

func TestNextPhrasesExcludesRecentlyServed(t *testing.T) {
	phrases := newStubPhraseRepo(
		mediumPhrase("phrase-1", "first"),
		mediumPhrase("phrase-2", "second"),
		mediumPhrase("phrase-3", "third"),
	)
	usage := newStubUsageStore()
	if err := usage.RecordUse(context.Background(), "identity-1", []string{"phrase-1", "phrase-2"}, testTime()); err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	svc := NewPhraseService(phrases, usage, nil).WithPicker(func(int) int { return 0 })

	selected, err := svc.NextPhrases(context.Background(), "identity-1", 1, domain.PhraseDifficultyMedium)
	if err != nil {
		t.Fatalf("next phrases: %v", err)
	}
	if len(selected) != 1 || selected[0].ID != "phrase-3" {
		t.Fatalf("expected phrase-3 after exclusion, got %+v", selected)
	}
}

func TestNextPhrasesFailsWhenPoolTooSmall(t *testing.T) {
	phrases := newStubPhraseRepo(
		mediumPhrase("phrase-1", "first"),
		mediumPhrase("phrase-2", "second"),
	)
	svc := NewPhraseService(phrases, newStubUsageStore(), nil)

	_, err := svc.NextPhrases(context.Background(), "identity-1", 3, domain.PhraseDifficultyMedium)
	if !errors.Is(err, ErrNoEligiblePhrases) {
		t.Fatalf("expected ErrNoEligiblePhrases, got %v", err)
	}
}

func TestNextPhrasesSkipsInactiveAndWrongDifficulty(t *testing.T) {
	phrases := newStubPhraseRepo(
		mediumPhrase("phrase-1", "first"),
		domain.Phrase{ID: "phrase-2", Text: "retired", Language: "en", Difficulty: domain.PhraseDifficultyMedium, Active: false},
		domain.Phrase{ID: "phrase-3", Text: "too hard", Language: "en", Difficulty: domain.PhraseDifficultyHard, Active: true},
	)
	svc := NewPhraseService(phrases, newStubUsageStore(), nil).WithPicker(func(int) int { return 0 })

	selected, err := svc.NextPhrases(context.Background(), "", 1, domain.PhraseDifficultyMedium)
	if err != nil {
		t.Fatalf("next phrases: %v", err)
	}
	if selected[0].ID != "phrase-1" {
		t.Fatalf("expected only the active medium phrase, got %s", selected[0].ID)
	}
}

func TestNextPhrasesRecordsSelection(t *testing.T) {
	phrases := newStubPhraseRepo(
		mediumPhrase("phrase-1", "first"),
		mediumPhrase("phrase-2", "second"),
		mediumPhrase("phrase-3", "third"),
	)
	usage := newStubUsageStore()
	svc := NewPhraseService(phrases, usage, nil).WithPicker(func(int) int { return 0 })

	selected, err := svc.NextPhrases(context.Background(), "identity-1", 2, domain.PhraseDifficultyMedium)
	if err != nil {
		t.Fatalf("next phrases: %v", err)
	}

	recent, err := usage.RecentPhraseIDs(context.Background(), "identity-1", 10)
	if err != nil {
		t.Fatalf("recent phrases: %v", err)
	}
	if len(recent) != len(selected) {
		t.Fatalf("expected %d recorded phrases, got %d", len(selected), len(recent))
	}
}

func TestNextPhrasesRejectsUnknownDifficulty(t *testing.T) {
	svc := NewPhraseService(newStubPhraseRepo(), newStubUsageStore(), nil)

	_, err := svc.NextPhrases(context.Background(), "identity-1", 1, domain.PhraseDifficulty("brutal"))
	if err == nil {
		t.Fatal("expected error for unknown difficulty")
	}
}

func TestCreatePhraseDefaultsLanguage(t *testing.T) {
	phrases := newStubPhraseRepo()
	svc := NewPhraseService(phrases, newStubUsageStore(), nil).WithLanguage("de")

	phrase, err := svc.CreatePhrase(context.Background(), PhraseInput{
		Text:       "  der schnelle braune fuchs  ",
		Difficulty: domain.PhraseDifficultyEasy,
	})
	if err != nil {
		t.Fatalf("create phrase: %v", err)
	}
	if phrase.Language != "de" {
		t.Errorf("expected default language de, got %q", phrase.Language)
	}
	if phrase.Text != "der schnelle braune fuchs" {
		t.Errorf("expected trimmed text, got %q", phrase.Text)
	}
	if !phrase.Active {
		t.Error("expected new phrase to be active")
	}
}

func TestDeactivatePhraseUnknownID(t *testing.T) {
	svc := NewPhraseService(newStubPhraseRepo(), newStubUsageStore(), nil)

	err := svc.DeactivatePhrase(context.Background(), "no-such-phrase")
	if !errors.Is(err, ErrPhraseNotFound) {
		t.Fatalf("expected ErrPhraseNotFound, got %v", err)
	}
}
