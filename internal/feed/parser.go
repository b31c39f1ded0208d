package feed

import (
	"regexp"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/hash"
	"github.com/kupukupu/syncd/pkg/logger"
)

var imgSrcPattern = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)

// Parser converts raw RSS/Atom XML into normalized items. Format
// detection is delegated to gofeed, which handles both families
// transparently; per-entry field normalization follows the reader's
// policy (description preferred over content, published falling back
// to updated falling back to now).
type Parser struct {
	parser *gofeed.Parser
	policy *bluemonday.Policy
	logger *logger.Logger
}

// NewParser creates a parser. Item content is sanitized with a UGC
// policy since it is rendered as HTML by the UI.
func NewParser(log *logger.Logger) *Parser {
	return &Parser{
		parser: gofeed.NewParser(),
		policy: bluemonday.UGCPolicy(),
		logger: log.WithComponent("parser"),
	}
}

// Parse parses raw feed XML into items owned by feedID. Malformed XML
// fails the whole call with a ParseError; there are no partial
// results. Entries without a link are skipped since the link is the
// item's identity.
func (p *Parser) Parse(feedID, raw string) ([]domain.Item, error) {
	parsed, err := p.parser.ParseString(raw)
	if err != nil {
		return nil, &domain.ParseError{Err: err}
	}

	now := time.Now().UTC()
	items := make([]domain.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry.Link == "" {
			p.logger.Debug("skipping entry without link", "feed_id", feedID, "title", entry.Title)
			continue
		}

		content := entry.Description
		if content == "" {
			content = entry.Content
		}
		content = p.policy.Sanitize(content)

		// pubDate (RSS) -> published (Atom) -> updated (Atom) -> now.
		// gofeed leaves the parsed fields nil for unparseable dates,
		// so a bad date string falls through instead of failing the item.
		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		var author string
		if entry.Author != nil {
			author = entry.Author.Name
		}

		items = append(items, domain.Item{
			FeedID:    feedID,
			Title:     entry.Title,
			Content:   content,
			Link:      entry.Link,
			Author:    author,
			Published: published,
			URLHash:   hash.Sum(entry.Link),
			Images:    extractImages(content),
		})
	}

	return items, nil
}

// extractImages enumerates embedded image URLs for a future local
// caching layer. Images are not fetched here.
func extractImages(content string) []domain.ItemImage {
	matches := imgSrcPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	images := make([]domain.ItemImage, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		src := m[1]
		if seen[src] {
			continue
		}
		seen[src] = true
		images = append(images, domain.ItemImage{
			OriginalURL: src,
			Status:      domain.ImageStatusPending,
		})
	}
	return images
}
