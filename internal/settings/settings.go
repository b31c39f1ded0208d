// Package settings persists the user settings object and notifies the
// pipeline when the subscription list changes.
package settings

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/hash"
	"github.com/kupukupu/syncd/internal/pubsub"
	"github.com/kupukupu/syncd/internal/storage"
	"github.com/kupukupu/syncd/pkg/logger"
)

const (
	// Namespace partitions settings away from pipeline state.
	Namespace = "settings"

	// Key is the single settings record.
	Key = "settings"
)

// Service reads and writes the settings object. Saving assigns
// URL-derived feed ids and publishes a savedSettings event so the
// scheduler reconciles its feed map.
type Service struct {
	store  storage.Store
	bus    *pubsub.Bus
	logger *logger.Logger
}

// NewService creates a settings service.
func NewService(store storage.Store, bus *pubsub.Bus, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		bus:    bus,
		logger: log.WithComponent("settings"),
	}
}

// Get returns the stored settings, or the zero value when none exist.
func (s *Service) Get(ctx context.Context) (domain.Settings, error) {
	raw, err := s.store.Get(ctx, Key, Namespace)
	if err != nil {
		return domain.Settings{}, err
	}
	if raw == nil {
		return domain.Settings{}, nil
	}

	var settings domain.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.Settings{}, domain.NewStorageError("decode settings", err)
	}
	return settings, nil
}

// Save validates and persists settings, then announces the change.
// Feed ids are always recomputed from the URL hash so a feed's stored
// items survive title edits and list reordering.
func (s *Service) Save(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	seen := make(map[string]bool, len(settings.RSSFeeds))
	for i := range settings.RSSFeeds {
		fc := &settings.RSSFeeds[i]

		u, err := url.ParseRequestURI(fc.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return domain.Settings{}, domain.NewValidationError("rssFeeds", "invalid feed URL: "+fc.URL)
		}
		if seen[fc.URL] {
			return domain.Settings{}, domain.NewValidationError("rssFeeds", "duplicate feed URL: "+fc.URL)
		}
		seen[fc.URL] = true

		fc.ID = hash.Sum(fc.URL)
		if fc.Title == "" {
			fc.Title = fc.URL
		}
	}

	if err := s.store.Set(ctx, Key, settings, Namespace); err != nil {
		return domain.Settings{}, err
	}

	s.logger.Info("settings saved", "feed_count", len(settings.RSSFeeds))
	s.bus.Publish(domain.TopicSavedSettings, domain.SettingsSavedEvent{Settings: settings})
	return settings, nil
}
