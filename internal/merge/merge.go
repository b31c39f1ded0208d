// Package merge reconciles freshly parsed items against a feed's
// stored state: deduplication by URL hash, newer-wins updates, a hard
// cap on retained history, and the seen-hash ledger that distinguishes
// genuinely new items from silent updates.
package merge

import (
	"sort"

	"github.com/kupukupu/syncd/internal/domain"
)

// DefaultItemsPerFeed caps how many items a feed retains.
const DefaultItemsPerFeed = 10

// Result is the outcome of one merge.
type Result struct {
	// Items are the retained items, newest first, at most the cap.
	Items []domain.Item

	// Seen is the recomputed ledger: exactly the hashes of Items.
	// Hashes of evicted items drop out, so an evicted item that
	// reappears later counts as new again.
	Seen []string

	// HasNew is raised only when at least one incoming hash was never
	// in the previous ledger. Replacing a known hash with a newer
	// timestamp is a silent update, not news.
	HasNew bool

	// NewCount is how many previously unseen items were merged.
	NewCount int
}

// Merge combines incoming items with the stored set for a feed. The
// inputs are not mutated. Capacity values below 1 fall back to the
// default cap.
func Merge(existing []domain.Item, seen []string, incoming []domain.Item, capacity int) Result {
	if capacity < 1 {
		capacity = DefaultItemsPerFeed
	}

	byHash := make(map[string]domain.Item, len(existing))
	order := make([]string, 0, len(existing)+len(incoming))
	for _, item := range existing {
		if _, ok := byHash[item.URLHash]; ok {
			continue
		}
		byHash[item.URLHash] = item
		order = append(order, item.URLHash)
	}

	ledger := make(map[string]bool, len(seen))
	for _, h := range seen {
		ledger[h] = true
	}

	var newCount int
	for _, item := range incoming {
		stored, exists := byHash[item.URLHash]
		if exists {
			if item.Published.After(stored.Published) {
				// Newer version of a known item: take the fresh
				// content but keep the user's read state.
				item.IsRead = stored.IsRead
				byHash[item.URLHash] = item
			}
		} else {
			byHash[item.URLHash] = item
			order = append(order, item.URLHash)
		}
		if !ledger[item.URLHash] {
			ledger[item.URLHash] = true
			newCount++
		}
	}

	merged := make([]domain.Item, 0, len(order))
	for _, h := range order {
		merged = append(merged, byHash[h])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Published.After(merged[j].Published)
	})

	if len(merged) > capacity {
		merged = merged[:capacity]
	}

	retained := make([]string, len(merged))
	for i, item := range merged {
		retained[i] = item.URLHash
	}

	return Result{
		Items:    merged,
		Seen:     retained,
		HasNew:   newCount > 0,
		NewCount: newCount,
	}
}
