// Package state maps the pipeline's persisted objects onto the
// key/value storage layout: feed_items_<feedId>, seen_hashes_<feedId>
// and the feeds snapshot, all in the default namespace.
package state

import (
	"context"
	"encoding/json"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/storage"
)

const feedsKey = "feeds"

// ItemsKey returns the storage key holding a feed's retained items.
func ItemsKey(feedID string) string {
	return "feed_items_" + feedID
}

// SeenKey returns the storage key holding a feed's seen-hash ledger.
func SeenKey(feedID string) string {
	return "seen_hashes_" + feedID
}

// Store provides typed access to the pipeline's persisted state.
type Store struct {
	kv storage.Store
}

// New creates a state store over the key/value backend.
func New(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// Feeds loads the persisted feed snapshot. Missing snapshot yields an
// empty map.
func (s *Store) Feeds(ctx context.Context) (map[string]*domain.Feed, error) {
	raw, err := s.kv.Get(ctx, feedsKey, storage.DefaultNamespace)
	if err != nil {
		return nil, err
	}
	feeds := make(map[string]*domain.Feed)
	if raw == nil {
		return feeds, nil
	}
	if err := json.Unmarshal(raw, &feeds); err != nil {
		return nil, domain.NewStorageError("decode feeds", err)
	}
	return feeds, nil
}

// SaveFeeds persists the feed snapshot.
func (s *Store) SaveFeeds(ctx context.Context, feeds map[string]*domain.Feed) error {
	return s.kv.Set(ctx, feedsKey, feeds, storage.DefaultNamespace)
}

// Items loads a feed's retained items. Missing key yields nil.
func (s *Store) Items(ctx context.Context, feedID string) ([]domain.Item, error) {
	raw, err := s.kv.Get(ctx, ItemsKey(feedID), storage.DefaultNamespace)
	if err != nil || raw == nil {
		return nil, err
	}
	var items []domain.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, domain.NewStorageError("decode items", err)
	}
	return items, nil
}

// SaveItems persists a feed's retained items.
func (s *Store) SaveItems(ctx context.Context, feedID string, items []domain.Item) error {
	return s.kv.Set(ctx, ItemsKey(feedID), items, storage.DefaultNamespace)
}

// Seen loads a feed's seen-hash ledger. Missing key yields nil.
func (s *Store) Seen(ctx context.Context, feedID string) ([]string, error) {
	raw, err := s.kv.Get(ctx, SeenKey(feedID), storage.DefaultNamespace)
	if err != nil || raw == nil {
		return nil, err
	}
	var hashes []string
	if err := json.Unmarshal(raw, &hashes); err != nil {
		return nil, domain.NewStorageError("decode seen hashes", err)
	}
	return hashes, nil
}

// SaveSeen persists a feed's seen-hash ledger.
func (s *Store) SaveSeen(ctx context.Context, feedID string, hashes []string) error {
	return s.kv.Set(ctx, SeenKey(feedID), hashes, storage.DefaultNamespace)
}

// Purge removes a feed's items and ledger, for feeds deleted from the
// subscription list.
func (s *Store) Purge(ctx context.Context, feedID string) error {
	if err := s.kv.Delete(ctx, ItemsKey(feedID), storage.DefaultNamespace); err != nil {
		return err
	}
	return s.kv.Delete(ctx, SeenKey(feedID), storage.DefaultNamespace)
}

// Migrate copies a feed's items and ledger from an old derived id to a
// new one, then removes the old keys. Copy-then-delete keeps history
// intact if the process dies mid-migration.
func (s *Store) Migrate(ctx context.Context, oldID, newID string) error {
	items, err := s.Items(ctx, oldID)
	if err != nil {
		return err
	}
	if items != nil {
		for i := range items {
			items[i].FeedID = newID
		}
		if err := s.SaveItems(ctx, newID, items); err != nil {
			return err
		}
		if err := s.kv.Delete(ctx, ItemsKey(oldID), storage.DefaultNamespace); err != nil {
			return err
		}
	}

	hashes, err := s.Seen(ctx, oldID)
	if err != nil {
		return err
	}
	if hashes != nil {
		if err := s.SaveSeen(ctx, newID, hashes); err != nil {
			return err
		}
		if err := s.kv.Delete(ctx, SeenKey(oldID), storage.DefaultNamespace); err != nil {
			return err
		}
	}
	return nil
}
