package state

import (
	"context"
	"testing"
	"time"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/storage/badger"
	"github.com/kupukupu/syncd/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := badger.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(badger.NewStore(db, logger.NewNop()))
}

func TestFeedsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	feeds, err := s.Feeds(ctx)
	if err != nil {
		t.Fatalf("Feeds() on empty store: %v", err)
	}
	if len(feeds) != 0 {
		t.Fatalf("expected empty snapshot, got %d feeds", len(feeds))
	}

	feeds["abc"] = &domain.Feed{
		ID:     "abc",
		URL:    "https://example.com/rss",
		Title:  "Example",
		Status: domain.FeedStatusActive,
	}
	if err := s.SaveFeeds(ctx, feeds); err != nil {
		t.Fatalf("SaveFeeds: %v", err)
	}

	loaded, err := s.Feeds(ctx)
	if err != nil {
		t.Fatalf("Feeds: %v", err)
	}
	f, ok := loaded["abc"]
	if !ok {
		t.Fatal("persisted feed missing from snapshot")
	}
	if f.URL != "https://example.com/rss" || f.Status != domain.FeedStatusActive {
		t.Errorf("feed fields lost in round trip: %+v", f)
	}
}

func TestItemsAndSeenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items, err := s.Items(ctx, "abc")
	if err != nil {
		t.Fatalf("Items on missing key: %v", err)
	}
	if items != nil {
		t.Fatalf("expected nil items for missing key, got %v", items)
	}

	want := []domain.Item{
		{FeedID: "abc", Title: "one", Link: "https://example.com/1", URLHash: "h1", Published: time.Now().UTC()},
		{FeedID: "abc", Title: "two", Link: "https://example.com/2", URLHash: "h2", Published: time.Now().UTC()},
	}
	if err := s.SaveItems(ctx, "abc", want); err != nil {
		t.Fatalf("SaveItems: %v", err)
	}
	if err := s.SaveSeen(ctx, "abc", []string{"h1", "h2"}); err != nil {
		t.Fatalf("SaveSeen: %v", err)
	}

	items, err = s.Items(ctx, "abc")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 2 || items[0].URLHash != "h1" {
		t.Errorf("unexpected items: %+v", items)
	}

	seen, err := s.Seen(ctx, "abc")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("expected 2 seen hashes, got %v", seen)
	}
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveItems(ctx, "abc", []domain.Item{{FeedID: "abc", URLHash: "h1"}}); err != nil {
		t.Fatalf("SaveItems: %v", err)
	}
	if err := s.SaveSeen(ctx, "abc", []string{"h1"}); err != nil {
		t.Fatalf("SaveSeen: %v", err)
	}

	if err := s.Purge(ctx, "abc"); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	items, err := s.Items(ctx, "abc")
	if err != nil {
		t.Fatalf("Items after purge: %v", err)
	}
	if items != nil {
		t.Errorf("items survived purge: %v", items)
	}
	seen, err := s.Seen(ctx, "abc")
	if err != nil {
		t.Fatalf("Seen after purge: %v", err)
	}
	if seen != nil {
		t.Errorf("seen ledger survived purge: %v", seen)
	}
}

func TestMigrateRewritesFeedID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveItems(ctx, "old", []domain.Item{
		{FeedID: "old", URLHash: "h1", IsRead: true},
		{FeedID: "old", URLHash: "h2"},
	}); err != nil {
		t.Fatalf("SaveItems: %v", err)
	}
	if err := s.SaveSeen(ctx, "old", []string{"h1", "h2"}); err != nil {
		t.Fatalf("SaveSeen: %v", err)
	}

	if err := s.Migrate(ctx, "old", "new"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	items, err := s.Items(ctx, "new")
	if err != nil {
		t.Fatalf("Items under new id: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 migrated items, got %d", len(items))
	}
	for _, it := range items {
		if it.FeedID != "new" {
			t.Errorf("item %s kept stale feed id %q", it.URLHash, it.FeedID)
		}
	}
	if !items[0].IsRead {
		t.Error("read flag lost during migration")
	}

	old, err := s.Items(ctx, "old")
	if err != nil {
		t.Fatalf("Items under old id: %v", err)
	}
	if old != nil {
		t.Errorf("old items not removed: %v", old)
	}

	seen, err := s.Seen(ctx, "new")
	if err != nil {
		t.Fatalf("Seen under new id: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("ledger not migrated: %v", seen)
	}
}

func TestMigrateMissingSourceIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx, "ghost", "new"); err != nil {
		t.Fatalf("Migrate with no source state: %v", err)
	}
	items, err := s.Items(ctx, "new")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if items != nil {
		t.Errorf("expected no items after empty migration, got %v", items)
	}
}
