// Package unread maintains cached unread counts over the stored items
// and keeps them current as items are read and new items arrive.
package unread

import (
	"context"
	"sync"
	"time"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/pubsub"
	"github.com/kupukupu/syncd/internal/state"
	"github.com/kupukupu/syncd/pkg/logger"
)

// debounceDelay batches rapid successive read events before the
// O(total items) recompute, so fast navigation does not rescan per
// click.
const debounceDelay = 100 * time.Millisecond

// Counts is a snapshot of the unread totals.
type Counts struct {
	Total   int            `json:"total"`
	PerFeed map[string]int `json:"per_feed"`
}

// Tracker caches unread counts and recomputes them on read and
// new-item events. It emits unreadCountChanged only when the total
// actually changes.
type Tracker struct {
	store  *state.Store
	bus    *pubsub.Bus
	logger *logger.Logger

	mu      sync.Mutex
	total   int
	perFeed map[string]int
	timer   *time.Timer

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a tracker. Call Start to begin consuming events.
func New(store *state.Store, bus *pubsub.Bus, log *logger.Logger) *Tracker {
	return &Tracker{
		store:    store,
		bus:      bus,
		logger:   log.WithComponent("unread"),
		perFeed:  make(map[string]int),
		stopChan: make(chan struct{}),
	}
}

// Start computes the initial counts and then follows bus events. It
// blocks until Stop or context cancellation, so run it in a goroutine.
func (t *Tracker) Start(ctx context.Context) {
	t.recompute(ctx)

	sub := t.bus.Subscribe(domain.TopicFeedItemRead, domain.TopicNewFeedItems)
	defer t.bus.Unsubscribe(sub.ID)

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			switch payload := ev.Payload.(type) {
			case domain.ItemReadEvent:
				if err := t.applyRead(ctx, payload); err != nil {
					t.logger.Error("failed to apply read flag",
						"feed_id", payload.FeedID,
						"url_hash", payload.URLHash,
						"error", err,
					)
				}
				t.scheduleRecompute(ctx)
			case domain.NewItemsEvent:
				// New items shift counts immediately; only read
				// events are debounced.
				t.recompute(ctx)
			}
		case <-t.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop shuts the tracker down.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		t.mu.Lock()
		if t.timer != nil {
			t.timer.Stop()
		}
		t.mu.Unlock()
	})
}

// Counts returns the cached totals.
func (t *Tracker) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()

	perFeed := make(map[string]int, len(t.perFeed))
	for id, n := range t.perFeed {
		perFeed[id] = n
	}
	return Counts{Total: t.total, PerFeed: perFeed}
}

// applyRead persists the read flag on the stored item.
func (t *Tracker) applyRead(ctx context.Context, ev domain.ItemReadEvent) error {
	feedIDs := []string{ev.FeedID}
	if ev.FeedID == "" {
		feeds, err := t.store.Feeds(ctx)
		if err != nil {
			return err
		}
		feedIDs = feedIDs[:0]
		for id := range feeds {
			feedIDs = append(feedIDs, id)
		}
	}

	for _, feedID := range feedIDs {
		items, err := t.store.Items(ctx, feedID)
		if err != nil {
			return err
		}
		for i := range items {
			if items[i].URLHash != ev.URLHash || items[i].IsRead {
				continue
			}
			items[i].IsRead = true
			return t.store.SaveItems(ctx, feedID, items)
		}
	}
	return nil
}

// scheduleRecompute arms the debounce timer, cancelling any pending
// one.
func (t *Tracker) scheduleRecompute(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(debounceDelay, func() {
		select {
		case <-t.stopChan:
			return
		default:
		}
		t.recompute(ctx)
	})
}

// recompute rescans every feed's stored items and publishes the new
// total if it changed.
func (t *Tracker) recompute(ctx context.Context) {
	feeds, err := t.store.Feeds(ctx)
	if err != nil {
		t.logger.Error("failed to load feeds for recompute", "error", err)
		return
	}

	total := 0
	perFeed := make(map[string]int, len(feeds))
	for id := range feeds {
		items, err := t.store.Items(ctx, id)
		if err != nil {
			t.logger.Error("failed to load items for recompute", "feed_id", id, "error", err)
			continue
		}
		count := 0
		for _, item := range items {
			if !item.IsRead {
				count++
			}
		}
		perFeed[id] = count
		total += count
	}

	t.mu.Lock()
	changed := total != t.total
	t.total = total
	t.perFeed = perFeed
	t.mu.Unlock()

	if changed {
		t.logger.Debug("unread total changed", "total", total)
		t.bus.Publish(domain.TopicUnreadCountChanged, domain.UnreadChangedEvent{
			Total:   total,
			PerFeed: perFeed,
		})
	}
}
