package unread

import (
	"context"
	"testing"
	"time"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/pubsub"
	"github.com/kupukupu/syncd/internal/state"
	"github.com/kupukupu/syncd/internal/storage/badger"
	"github.com/kupukupu/syncd/pkg/logger"
)

func newTestTracker(t *testing.T) (*Tracker, *state.Store, *pubsub.Bus) {
	t.Helper()

	db, err := badger.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := state.New(badger.NewStore(db, logger.NewNop()))
	bus := pubsub.New(logger.NewNop())
	t.Cleanup(bus.Close)

	return New(store, bus, logger.NewNop()), store, bus
}

func seedFeed(t *testing.T, store *state.Store, feedID string, items []domain.Item) {
	t.Helper()
	ctx := context.Background()

	feeds, err := store.Feeds(ctx)
	if err != nil {
		t.Fatalf("Feeds: %v", err)
	}
	feeds[feedID] = &domain.Feed{ID: feedID, URL: "https://example.com/" + feedID, Status: domain.FeedStatusActive}
	if err := store.SaveFeeds(ctx, feeds); err != nil {
		t.Fatalf("SaveFeeds: %v", err)
	}
	if err := store.SaveItems(ctx, feedID, items); err != nil {
		t.Fatalf("SaveItems: %v", err)
	}
}

func waitForCounts(t *testing.T, sub *pubsub.Subscription, timeout time.Duration) domain.UnreadChangedEvent {
	t.Helper()
	select {
	case ev := <-sub.C:
		payload, ok := ev.Payload.(domain.UnreadChangedEvent)
		if !ok {
			t.Fatalf("unexpected payload type %T", ev.Payload)
		}
		return payload
	case <-time.After(timeout):
		t.Fatal("timed out waiting for unreadCountChanged")
		return domain.UnreadChangedEvent{}
	}
}

func TestInitialRecomputePublishesCounts(t *testing.T) {
	tracker, store, bus := newTestTracker(t)

	seedFeed(t, store, "f1", []domain.Item{
		{FeedID: "f1", URLHash: "h1"},
		{FeedID: "f1", URLHash: "h2"},
		{FeedID: "f1", URLHash: "h3", IsRead: true},
	})
	seedFeed(t, store, "f2", []domain.Item{
		{FeedID: "f2", URLHash: "h4"},
	})

	sub := bus.Subscribe(domain.TopicUnreadCountChanged)
	defer bus.Unsubscribe(sub.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.Start(ctx)
	defer tracker.Stop()

	ev := waitForCounts(t, sub, 2*time.Second)
	if ev.Total != 3 {
		t.Errorf("expected total 3, got %d", ev.Total)
	}
	if ev.PerFeed["f1"] != 2 || ev.PerFeed["f2"] != 1 {
		t.Errorf("unexpected per-feed counts: %v", ev.PerFeed)
	}

	counts := tracker.Counts()
	if counts.Total != 3 {
		t.Errorf("cached total mismatch: %d", counts.Total)
	}
}

func TestReadEventPersistsFlagAndRecomputes(t *testing.T) {
	tracker, store, bus := newTestTracker(t)

	seedFeed(t, store, "f1", []domain.Item{
		{FeedID: "f1", URLHash: "h1"},
		{FeedID: "f1", URLHash: "h2"},
	})

	sub := bus.Subscribe(domain.TopicUnreadCountChanged)
	defer bus.Unsubscribe(sub.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.Start(ctx)
	defer tracker.Stop()

	if ev := waitForCounts(t, sub, 2*time.Second); ev.Total != 2 {
		t.Fatalf("expected initial total 2, got %d", ev.Total)
	}

	bus.Publish(domain.TopicFeedItemRead, domain.ItemReadEvent{FeedID: "f1", URLHash: "h1"})

	ev := waitForCounts(t, sub, 2*time.Second)
	if ev.Total != 1 {
		t.Errorf("expected total 1 after read, got %d", ev.Total)
	}

	items, err := store.Items(ctx, "f1")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	var read bool
	for _, it := range items {
		if it.URLHash == "h1" && it.IsRead {
			read = true
		}
	}
	if !read {
		t.Error("read flag not persisted on stored item")
	}
}

func TestReadEventWithoutFeedIDSearchesAllFeeds(t *testing.T) {
	tracker, store, bus := newTestTracker(t)

	seedFeed(t, store, "f1", []domain.Item{{FeedID: "f1", URLHash: "h1"}})
	seedFeed(t, store, "f2", []domain.Item{{FeedID: "f2", URLHash: "h2"}})

	sub := bus.Subscribe(domain.TopicUnreadCountChanged)
	defer bus.Unsubscribe(sub.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.Start(ctx)
	defer tracker.Stop()

	waitForCounts(t, sub, 2*time.Second)

	bus.Publish(domain.TopicFeedItemRead, domain.ItemReadEvent{URLHash: "h2"})

	ev := waitForCounts(t, sub, 2*time.Second)
	if ev.Total != 1 {
		t.Errorf("expected total 1, got %d", ev.Total)
	}
	if ev.PerFeed["f2"] != 0 {
		t.Errorf("read flag landed on wrong feed: %v", ev.PerFeed)
	}
}

func TestNoEventWhenTotalUnchanged(t *testing.T) {
	tracker, store, bus := newTestTracker(t)

	seedFeed(t, store, "f1", []domain.Item{{FeedID: "f1", URLHash: "h1"}})

	sub := bus.Subscribe(domain.TopicUnreadCountChanged)
	defer bus.Unsubscribe(sub.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.Start(ctx)
	defer tracker.Stop()

	waitForCounts(t, sub, 2*time.Second)

	// Unknown hash: nothing flips, the debounced recompute lands on
	// the same total and publishes nothing.
	bus.Publish(domain.TopicFeedItemRead, domain.ItemReadEvent{FeedID: "f1", URLHash: "ghost"})

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event for unchanged total: %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestRapidReadsDebounceToOneRecompute(t *testing.T) {
	tracker, store, bus := newTestTracker(t)

	seedFeed(t, store, "f1", []domain.Item{
		{FeedID: "f1", URLHash: "h1"},
		{FeedID: "f1", URLHash: "h2"},
		{FeedID: "f1", URLHash: "h3"},
	})

	sub := bus.Subscribe(domain.TopicUnreadCountChanged)
	defer bus.Unsubscribe(sub.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.Start(ctx)
	defer tracker.Stop()

	waitForCounts(t, sub, 2*time.Second)

	for _, h := range []string{"h1", "h2", "h3"} {
		bus.Publish(domain.TopicFeedItemRead, domain.ItemReadEvent{FeedID: "f1", URLHash: h})
	}

	// The batch collapses into one recompute after the debounce
	// window, ending at zero.
	ev := waitForCounts(t, sub, 2*time.Second)
	for ev.Total != 0 {
		ev = waitForCounts(t, sub, 2*time.Second)
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("debounce leaked an extra event: %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}
