package redis

import (
	"context"
	"testing"
	"time"
)

func TestPhraseUsageStore_RecordAndRecent(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewPhraseUsageStore(client, "usage")

	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := store.RecordUse(ctx, "id-1", []string{"p-1", "p-2"}, base); err != nil {
		t.Fatalf("RecordUse returned error: %v", err)
	}
	if err := store.RecordUse(ctx, "id-1", []string{"p-3"}, base.Add(time.Minute)); err != nil {
		t.Fatalf("RecordUse returned error: %v", err)
	}

	ids, err := store.RecentPhraseIDs(ctx, "id-1", 10)
	if err != nil {
		t.Fatalf("RecentPhraseIDs returned error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	if ids[0] != "p-3" {
		t.Fatalf("expected newest phrase first, got %v", ids)
	}
}

func TestPhraseUsageStore_WindowLimitsResults(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewPhraseUsageStore(client, "usage")

	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"p-1", "p-2", "p-3", "p-4"} {
		if err := store.RecordUse(ctx, "id-1", []string{id}, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordUse returned error: %v", err)
		}
	}

	ids, err := store.RecentPhraseIDs(ctx, "id-1", 2)
	if err != nil {
		t.Fatalf("RecentPhraseIDs returned error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if ids[0] != "p-4" || ids[1] != "p-3" {
		t.Fatalf("expected two newest ids, got %v", ids)
	}
}

func TestPhraseUsageStore_CapTrimsOldEntries(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewPhraseUsageStore(client, "usage").WithCap(3)

	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"p-1", "p-2", "p-3", "p-4", "p-5"} {
		if err := store.RecordUse(ctx, "id-1", []string{id}, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordUse returned error: %v", err)
		}
	}

	ids, err := store.RecentPhraseIDs(ctx, "id-1", 10)
	if err != nil {
		t.Fatalf("RecentPhraseIDs returned error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected cap of 3, got %d entries", len(ids))
	}
	if ids[0] != "p-5" || ids[2] != "p-3" {
		t.Fatalf("expected three newest ids, got %v", ids)
	}
}

func TestPhraseUsageStore_EmptyBatchIsNoop(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewPhraseUsageStore(client, "usage")

	if err := store.RecordUse(context.Background(), "id-1", nil, time.Now()); err != nil {
		t.Fatalf("RecordUse returned error: %v", err)
	}
	if server.Exists("usage:id-1") {
		t.Fatalf("expected no key for empty batch")
	}
}

func TestPhraseUsageStore_RecentForUnknownIdentity(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewPhraseUsageStore(client, "usage")

	ids, err := store.RecentPhraseIDs(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("RecentPhraseIDs returned error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
}
