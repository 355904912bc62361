// Package sourcetest builds Fetchers wired to throwaway caches for adapter
// tests.
package sourcetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/papersources"
)

// Options tweak the fetcher built by NewFetcher.
type Options struct {
	// APIKey and APIKeyHeader are set on the HTTP client.
	APIKey       string
	APIKeyHeader string

	// Cached backs the fetcher with a SQLite store in t.TempDir().
	Cached bool

	MaxRetries int
}

// NewFetcher returns an unpaced fetcher for source.
func NewFetcher(t testing.TB, source domain.SourceType, opts Options) *papersources.Fetcher {
	t.Helper()

	client := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:       source,
		Timeout:      5 * time.Second,
		MaxRetries:   opts.MaxRetries,
		RetryDelay:   time.Millisecond,
		APIKey:       opts.APIKey,
		APIKeyHeader: opts.APIKeyHeader,
	})

	var store cache.Store
	if opts.Cached {
		s, err := cache.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
		if err != nil {
			t.Fatalf("open cache: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		store = s
	}

	return papersources.NewFetcher(papersources.FetcherConfig{
		Client: client,
		Cache:  store,
		TTL:    time.Hour,
		Logger: zerolog.Nop(),
	})
}

// Query builds a validated query, failing the test on error.
func Query(t testing.TB, mode domain.SearchMode, text string, limit int, filters domain.Filters) domain.SearchQuery {
	t.Helper()
	q, err := domain.NewSearchQuery(mode, text, limit, filters)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	return q
}
