// Package scheduler drives the feed synchronization pipeline: periodic
// sweeps over every active feed through a bounded worker pool, with
// per-feed retry and terminal error handling, and reconciliation of
// the feed map against the user's subscription list.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kupukupu/syncd/internal/config"
	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/feed"
	"github.com/kupukupu/syncd/internal/hash"
	"github.com/kupukupu/syncd/internal/merge"
	"github.com/kupukupu/syncd/internal/pubsub"
	"github.com/kupukupu/syncd/internal/state"
	"github.com/kupukupu/syncd/pkg/logger"
)

// Scheduler owns the in-memory feed map and runs the fetch pipeline.
// All mutation of the map goes through the mutex; fetch jobs for
// different feeds run concurrently but a feed is never enqueued while
// its previous job is still in flight.
type Scheduler struct {
	store   *state.Store
	fetcher *feed.Fetcher
	parser  *feed.Parser
	bus     *pubsub.Bus
	logger  *logger.Logger
	cfg     config.SyncConfig

	mu       sync.Mutex
	feeds    map[string]*domain.Feed
	inflight map[string]bool

	sem      chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler. Call Start to begin sweeping.
func New(
	store *state.Store,
	fetcher *feed.Fetcher,
	parser *feed.Parser,
	bus *pubsub.Bus,
	cfg config.SyncConfig,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		store:    store,
		fetcher:  fetcher,
		parser:   parser,
		bus:      bus,
		logger:   log.WithComponent("scheduler"),
		cfg:      cfg,
		feeds:    make(map[string]*domain.Feed),
		inflight: make(map[string]bool),
		sem:      make(chan struct{}, cfg.FetchConcurrency),
		stopChan: make(chan struct{}),
	}
}

// Start loads persisted state, reconciles against the current
// settings, runs an initial sweep and then sweeps on the configured
// interval. It blocks until Stop or context cancellation, so run it in
// a goroutine.
func (s *Scheduler) Start(ctx context.Context, current domain.Settings) {
	s.logger.Info("starting scheduler",
		"interval", s.cfg.FetchInterval.String(),
		"concurrency", s.cfg.FetchConcurrency,
	)

	persisted, err := s.store.Feeds(ctx)
	if err != nil {
		s.logger.Error("failed to load persisted feeds", "error", err)
		persisted = make(map[string]*domain.Feed)
	}
	s.mu.Lock()
	s.feeds = persisted
	s.mu.Unlock()

	if err := s.Reconcile(ctx, current); err != nil {
		s.logger.Error("initial reconciliation failed", "error", err)
	}

	sub := s.bus.Subscribe(domain.TopicSavedSettings, domain.TopicRefreshFeeds)
	defer s.bus.Unsubscribe(sub.ID)

	ticker := time.NewTicker(s.cfg.FetchInterval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			switch payload := ev.Payload.(type) {
			case domain.SettingsSavedEvent:
				if err := s.Reconcile(ctx, payload.Settings); err != nil {
					s.logger.Error("reconciliation failed", "error", err)
				}
				s.Sweep(ctx)
			case domain.RefreshEvent:
				s.Sweep(ctx)
			}
		case <-s.stopChan:
			s.logger.Info("stopping scheduler")
			s.wg.Wait()
			return
		case <-ctx.Done():
			s.logger.Info("context cancelled, stopping scheduler")
			s.wg.Wait()
			return
		}
	}
}

// Stop shuts the scheduler down and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Sweep enqueues a fetch job for every active feed not already in
// flight. Jobs run concurrently up to the configured limit; the sweep
// itself returns immediately.
func (s *Scheduler) Sweep(ctx context.Context) {
	s.mu.Lock()
	var queued []*domain.Feed
	for _, f := range s.feeds {
		if f.Status != domain.FeedStatusActive || s.inflight[f.ID] {
			continue
		}
		s.inflight[f.ID] = true
		snapshot := *f
		queued = append(queued, &snapshot)
	}
	s.mu.Unlock()

	if len(queued) == 0 {
		return
	}
	s.logger.Debug("sweep queued", "feeds", len(queued))

	for _, f := range queued {
		s.wg.Add(1)
		go func(f *domain.Feed) {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.inflight, f.ID)
				s.mu.Unlock()
			}()

			select {
			case s.sem <- struct{}{}:
				defer func() { <-s.sem }()
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			}

			s.runJob(ctx, f)
		}(f)
	}
}

// runJob fetches, parses and merges one feed, retrying transient
// failures until the retry limit is reached.
func (s *Scheduler) runJob(ctx context.Context, f *domain.Feed) {
	for {
		err := s.syncOnce(ctx, f)
		if err == nil {
			s.markSuccess(ctx, f.ID)
			return
		}
		if ctx.Err() != nil {
			return
		}

		terminal := s.markFailure(ctx, f.ID, err)
		if terminal {
			return
		}
		s.logger.Warn("feed fetch failed, retrying",
			"feed_id", f.ID,
			"url", f.URL,
			"error", err,
		)
	}
}

// syncOnce runs one fetch+parse+merge+persist attempt for a feed.
func (s *Scheduler) syncOnce(ctx context.Context, f *domain.Feed) error {
	raw, err := s.fetcher.Fetch(ctx, f.URL)
	if err != nil {
		return err
	}

	items, err := s.parser.Parse(f.ID, raw)
	if err != nil {
		return err
	}

	existing, err := s.store.Items(ctx, f.ID)
	if err != nil {
		return err
	}
	seen, err := s.store.Seen(ctx, f.ID)
	if err != nil {
		return err
	}

	result := merge.Merge(existing, seen, items, s.cfg.ItemsPerFeed)

	if err := s.store.SaveItems(ctx, f.ID, result.Items); err != nil {
		return err
	}
	if err := s.store.SaveSeen(ctx, f.ID, result.Seen); err != nil {
		return err
	}

	if result.HasNew {
		s.logger.Info("new items merged",
			"feed_id", f.ID,
			"url", f.URL,
			"new", result.NewCount,
		)
		s.bus.Publish(domain.TopicNewFeedItems, domain.NewItemsEvent{
			FeedID: f.ID,
			Count:  result.NewCount,
		})
	}
	return nil
}

// markSuccess resets the feed's error state after a clean sync.
func (s *Scheduler) markSuccess(ctx context.Context, feedID string) {
	s.mu.Lock()
	if f, ok := s.feeds[feedID]; ok {
		f.LastFetchTime = time.Now().UTC()
		f.ErrorCount = 0
		f.LastError = ""
		f.Status = domain.FeedStatusActive
	}
	s.persistFeedsLocked(ctx)
	s.mu.Unlock()
}

// markFailure bumps the feed's error count and reports whether the
// feed reached the terminal error state. The feedError event fires
// exactly once, on the transition.
func (s *Scheduler) markFailure(ctx context.Context, feedID string, cause error) bool {
	s.mu.Lock()
	f, ok := s.feeds[feedID]
	if !ok {
		// Feed was removed while its job ran.
		s.mu.Unlock()
		return true
	}

	f.ErrorCount++
	f.LastError = cause.Error()
	f.LastFetchTime = time.Now().UTC()

	terminal := f.ErrorCount >= s.cfg.MaxRetries
	if terminal {
		f.Status = domain.FeedStatusError
	}
	s.persistFeedsLocked(ctx)
	url := f.URL
	s.mu.Unlock()

	if terminal {
		s.logger.Error("feed entered error state",
			"feed_id", feedID,
			"url", url,
			"attempts", s.cfg.MaxRetries,
			"error", cause,
		)
		s.bus.Publish(domain.TopicFeedError, domain.FeedErrorEvent{
			FeedID: feedID,
			Error:  cause.Error(),
		})
	}
	return terminal
}

// Reconcile aligns the feed map with the subscription list. Feeds keep
// their identity through the URL hash: an entry whose stored id no
// longer matches its URL hash has its items and ledger migrated to the
// new key, and feeds dropped from the list are purged entirely.
func (s *Scheduler) Reconcile(ctx context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byURL := make(map[string]*domain.Feed, len(s.feeds))
	for _, f := range s.feeds {
		byURL[f.URL] = f
	}

	next := make(map[string]*domain.Feed, len(settings.RSSFeeds))
	for _, fc := range settings.RSSFeeds {
		id := hash.Sum(fc.URL)
		title := fc.Title
		if title == "" {
			title = fc.URL
		}

		if existing, ok := byURL[fc.URL]; ok {
			if existing.ID != id {
				// Stored under a stale id: move history to the
				// canonical key so cosmetic edits never lose items.
				s.logger.Info("migrating feed storage",
					"url", fc.URL,
					"old_id", existing.ID,
					"new_id", id,
				)
				if err := s.store.Migrate(ctx, existing.ID, id); err != nil {
					return err
				}
				existing.ID = id
				existing.ErrorCount = 0
				existing.LastError = ""
				existing.Status = domain.FeedStatusActive
			}
			existing.Title = title
			next[id] = existing
			continue
		}

		next[id] = &domain.Feed{
			ID:     id,
			URL:    fc.URL,
			Title:  title,
			Status: domain.FeedStatusActive,
		}
	}

	for id, f := range s.feeds {
		if _, kept := next[id]; kept {
			continue
		}
		s.logger.Info("purging removed feed", "feed_id", id, "url", f.URL)
		if err := s.store.Purge(ctx, id); err != nil {
			return err
		}
	}

	s.feeds = next
	s.persistFeedsLocked(ctx)
	return nil
}

// Feeds returns a snapshot of the feed map.
func (s *Scheduler) Feeds() []*domain.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()

	feeds := make([]*domain.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		snapshot := *f
		feeds = append(feeds, &snapshot)
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Title < feeds[j].Title })
	return feeds
}

// Feed returns a snapshot of one feed.
func (s *Scheduler) Feed(id string) (*domain.Feed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[id]
	if !ok {
		return nil, false
	}
	snapshot := *f
	return &snapshot, true
}

// Items re-reads the merged state for one feed, or for every known
// feed when feedID is empty, newest first. A slow feed's stale data
// never blocks other feeds' items from appearing.
func (s *Scheduler) Items(ctx context.Context, feedID string) ([]domain.Item, error) {
	var ids []string
	if feedID != "" {
		ids = []string{feedID}
	} else {
		s.mu.Lock()
		for id := range s.feeds {
			ids = append(ids, id)
		}
		s.mu.Unlock()
	}

	var all []domain.Item
	for _, id := range ids {
		items, err := s.store.Items(ctx, id)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Published.After(all[j].Published)
	})
	return all, nil
}

// persistFeedsLocked writes the feeds snapshot. Callers hold the mutex,
// which serializes concurrent job completions onto the snapshot key.
func (s *Scheduler) persistFeedsLocked(ctx context.Context) {
	if err := s.store.SaveFeeds(ctx, s.feeds); err != nil {
		s.logger.Error("failed to persist feeds snapshot", "error", err)
	}
}
