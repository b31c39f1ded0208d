// Package feed retrieves and parses remote RSS/Atom feeds into the
// normalized item model.
package feed

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/pkg/logger"
)

// userAgent is browser-like because some hosts block generic bots.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher retrieves raw feed text over HTTP. It does not interpret the
// content; retry policy belongs to the scheduler.
type Fetcher struct {
	client *http.Client
	logger *logger.Logger
}

// NewFetcher creates a fetcher with a per-request timeout. The timeout
// keeps a hung host from occupying a worker slot indefinitely.
func NewFetcher(timeout time.Duration, log *logger.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		logger: log.WithComponent("fetcher"),
	}
}

// Fetch performs an HTTP GET against the feed URL and returns the raw
// response body. Transport failures and non-2xx statuses fail with a
// FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &domain.FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &domain.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domain.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.FetchError{URL: url, Err: err}
	}

	f.logger.Debug("fetched feed", "url", url, "bytes", len(body))
	return string(body), nil
}
