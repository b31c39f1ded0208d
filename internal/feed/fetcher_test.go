package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/pkg/logger"
)

func TestFetchSuccess(t *testing.T) {
	const body = `<?xml version="1.0"?><rss version="2.0"><channel></channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("expected User-Agent header")
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, logger.NewNop())
	got, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != body {
		t.Errorf("body mismatch: %q", got)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, logger.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	var ferr *domain.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("got %T, want *domain.FetchError", err)
	}
	if ferr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", ferr.StatusCode)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewFetcher(50*time.Millisecond, logger.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var ferr *domain.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("got %T, want *domain.FetchError", err)
	}
}

func TestFetchTransportFailure(t *testing.T) {
	f := NewFetcher(time.Second, logger.NewNop())
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/feed.xml")
	if err == nil {
		t.Fatal("expected error for unreachable host")
	}
	var ferr *domain.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("got %T, want *domain.FetchError", err)
	}
}
