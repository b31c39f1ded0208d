package feed

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/hash"
	"github.com/kupukupu/syncd/pkg/logger"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <item>
      <title>First post</title>
      <description>&lt;p&gt;Hello world&lt;/p&gt;</description>
      <link>https://a.test/posts/1</link>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    </item>
    <item>
      <title>Second post</title>
      <description>&lt;p&gt;More text&lt;/p&gt;&lt;img src="https://a.test/cat.png"&gt;</description>
      <link>https://a.test/posts/2</link>
      <pubDate>Tue, 03 Jan 2006 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Atom</title>
  <id>urn:example</id>
  <updated>2006-01-05T12:00:00Z</updated>
  <entry>
    <title>Atom entry</title>
    <id>urn:entry-1</id>
    <link href="https://b.test/entries/1"/>
    <updated>2006-01-04T08:30:00Z</updated>
    <author><name>Alice</name></author>
    <content type="html">&lt;p&gt;Atom body&lt;/p&gt;</content>
  </entry>
</feed>`

func TestParseRSS(t *testing.T) {
	p := NewParser(logger.NewNop())

	items, err := p.Parse("feed1", rssFixture)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if first.FeedID != "feed1" {
		t.Errorf("feed id = %q", first.FeedID)
	}
	if first.Title != "First post" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Link != "https://a.test/posts/1" {
		t.Errorf("link = %q", first.Link)
	}
	if first.URLHash != hash.Sum(first.Link) {
		t.Errorf("url hash %q does not match hash of link", first.URLHash)
	}
	want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	if !first.Published.Equal(want) {
		t.Errorf("published = %v, want %v", first.Published, want)
	}
	if first.IsRead {
		t.Error("new item must start unread")
	}
}

func TestParseAtom(t *testing.T) {
	p := NewParser(logger.NewNop())

	items, err := p.Parse("feed2", atomFixture)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	item := items[0]
	if item.Link != "https://b.test/entries/1" {
		t.Errorf("link = %q", item.Link)
	}
	if item.Author != "Alice" {
		t.Errorf("author = %q", item.Author)
	}
	// No published element: falls back to the updated timestamp.
	want := time.Date(2006, 1, 4, 8, 30, 0, 0, time.UTC)
	if !item.Published.Equal(want) {
		t.Errorf("published = %v, want %v", item.Published, want)
	}
}

func TestParseUnparseableDateDefaultsToNow(t *testing.T) {
	raw := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>x</title><link>https://a.test/x</link><pubDate>not a date</pubDate></item>
</channel></rss>`

	p := NewParser(logger.NewNop())
	before := time.Now().UTC()
	items, err := p.Parse("f", raw)
	after := time.Now().UTC()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	pub := items[0].Published
	if pub.Before(before) || pub.After(after) {
		t.Errorf("published = %v, want between %v and %v", pub, before, after)
	}
}

func TestParseMalformedXML(t *testing.T) {
	p := NewParser(logger.NewNop())

	_, err := p.Parse("f", "this is not a feed at all")
	if err == nil {
		t.Fatal("expected ParseError")
	}
	var perr *domain.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("got %T, want *domain.ParseError", err)
	}
}

func TestParseSanitizesContent(t *testing.T) {
	raw := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>x</title><link>https://a.test/x</link>
<description>&lt;script&gt;alert(1)&lt;/script&gt;&lt;p&gt;safe&lt;/p&gt;</description></item>
</channel></rss>`

	p := NewParser(logger.NewNop())
	items, err := p.Parse("f", raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	content := items[0].Content
	if strings.Contains(content, "script") {
		t.Errorf("script survived sanitization: %q", content)
	}
	if !strings.Contains(content, "safe") {
		t.Errorf("legitimate content stripped: %q", content)
	}
}

func TestParseExtractsImages(t *testing.T) {
	p := NewParser(logger.NewNop())

	items, err := p.Parse("f", rssFixture)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second := items[1]
	if len(second.Images) != 1 {
		t.Fatalf("got %d images, want 1", len(second.Images))
	}
	img := second.Images[0]
	if img.OriginalURL != "https://a.test/cat.png" {
		t.Errorf("image url = %q", img.OriginalURL)
	}
	if img.Status != domain.ImageStatusPending {
		t.Errorf("image status = %q, want pending", img.Status)
	}
	if img.LocalPath != "" {
		t.Error("local path must be empty until a cache fills it")
	}
}

func TestParseSkipsEntriesWithoutLink(t *testing.T) {
	raw := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>no link</title></item>
<item><title>has link</title><link>https://a.test/ok</link></item>
</channel></rss>`

	p := NewParser(logger.NewNop())
	items, err := p.Parse("f", raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Link != "https://a.test/ok" {
		t.Errorf("kept wrong item: %q", items[0].Link)
	}
}
