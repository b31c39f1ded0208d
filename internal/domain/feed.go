package domain

import (
	"time"
)

// FeedStatus describes whether a feed participates in scheduled sweeps.
type FeedStatus string

const (
	// FeedStatusActive marks a feed that is fetched on every sweep.
	FeedStatusActive FeedStatus = "active"

	// FeedStatusError marks a feed that exhausted its retries and is
	// excluded from sweeps until the user edits or re-adds it.
	FeedStatusError FeedStatus = "error"
)

// Feed represents a subscribed RSS/Atom source.
//
// ID is derived deterministically from the feed URL (see the hash
// package), never from list position, so reordering or renaming the
// subscription list cannot orphan stored items.
type Feed struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	LastFetchTime time.Time  `json:"last_fetch_time"`
	ErrorCount    int        `json:"error_count"`
	LastError     string     `json:"last_error,omitempty"`
	Status        FeedStatus `json:"status"`
}

// Validate validates the feed fields.
func (f *Feed) Validate() error {
	if f.URL == "" {
		return ErrInvalidFeed
	}
	if f.ID == "" {
		return ErrInvalidFeed
	}
	return nil
}

// ImageStatus tracks the local caching state of an embedded image.
type ImageStatus string

const (
	ImageStatusPending ImageStatus = "pending"
	ImageStatusCached  ImageStatus = "cached"
	ImageStatusFailed  ImageStatus = "failed"
)

// ItemImage records an image referenced by an item's content. Images
// are enumerated at parse time but not fetched; LocalPath is filled in
// by a future caching layer.
type ItemImage struct {
	OriginalURL string      `json:"original_url"`
	LocalPath   string      `json:"local_path,omitempty"`
	Status      ImageStatus `json:"status"`
}

// Item is a single article/entry belonging to a feed.
//
// URLHash is the deterministic hash of Link and doubles as the item's
// identity: it is the sole deduplication key within a feed, and two
// entries with different links are always distinct even when title and
// content match.
type Item struct {
	FeedID    string      `json:"feed_id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	Link      string      `json:"link"`
	Author    string      `json:"author,omitempty"`
	Published time.Time   `json:"published"`
	URLHash   string      `json:"url_hash"`
	IsRead    bool        `json:"is_read"`
	Images    []ItemImage `json:"images,omitempty"`
}

// FeedConfig is a single subscription entry in the user settings.
type FeedConfig struct {
	ID    string `json:"id"`
	URL   string `json:"url" binding:"required,url"`
	Title string `json:"title"`
}

// Settings is the persisted user settings object. The sync core only
// reads RSSFeeds; the remaining fields belong to the UI host and are
// carried through untouched.
type Settings struct {
	RSSFeeds  []FeedConfig `json:"rssFeeds"`
	DarkMode  bool         `json:"darkMode"`
	Theme     string       `json:"theme,omitempty"`
	OllamaURL string       `json:"ollamaUrl,omitempty"`
}
