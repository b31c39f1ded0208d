package domain

// Event topics published on the in-process bus.
const (
	TopicNewFeedItems       = "newFeedItems"
	TopicFeedError          = "feedError"
	TopicFeedItemRead       = "feedItemRead"
	TopicUnreadCountChanged = "unreadCountChanged"
	TopicSavedSettings      = "savedSettings"
	TopicRefreshFeeds       = "refreshFeeds"
)

// NewItemsEvent announces that a sweep merged previously unseen items
// for a feed.
type NewItemsEvent struct {
	FeedID string `json:"feed_id"`
	Count  int    `json:"count"`
}

// FeedErrorEvent announces that a feed exhausted its retries and
// entered the terminal error state.
type FeedErrorEvent struct {
	FeedID string `json:"feed_id"`
	Error  string `json:"error"`
}

// ItemReadEvent marks a single item as read, identified by its URL hash.
type ItemReadEvent struct {
	FeedID  string `json:"feed_id"`
	URLHash string `json:"url_hash"`
}

// UnreadChangedEvent carries recomputed unread counts.
type UnreadChangedEvent struct {
	Total   int            `json:"total"`
	PerFeed map[string]int `json:"per_feed"`
}

// SettingsSavedEvent triggers feed-map reconciliation against the new
// subscription list.
type SettingsSavedEvent struct {
	Settings Settings `json:"settings"`
}

// RefreshEvent requests an immediate full sweep.
type RefreshEvent struct{}
