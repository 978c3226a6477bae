package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "history.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func TestStore_DeliverAndRecent(t *testing.T) {
	store := setupTestStore(t)

	for i := 0; i < 5; i++ {
		ev := sampleEvent()
		ev.RequestID = fmt.Sprintf("req-%d", i)
		if err := store.Deliver(context.Background(), ev); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}

	recent, err := store.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d events, want 3", len(recent))
	}
	if recent[0].RequestID != "req-4" {
		t.Fatalf("newest first: got %q, want req-4", recent[0].RequestID)
	}
	if recent[0].Tier != "high" || len(recent[0].TopFeatures) == 0 {
		t.Fatalf("payload did not round-trip: %+v", recent[0])
	}
}

func TestStore_RecentOnEmpty(t *testing.T) {
	store := setupTestStore(t)

	recent, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 0 {
		t.Fatalf("expected no events, got %d", len(recent))
	}
}

func TestOpenStore_EmptyPath(t *testing.T) {
	if _, err := OpenStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenStore_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "history.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store with nested path: %v", err)
	}
	store.Close(context.Background())
}
