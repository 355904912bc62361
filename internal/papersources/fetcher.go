package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/observability"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 32 << 20

// Request describes one provider call made through a Fetcher.
type Request struct {
	// Step names the call within the adapter ("search", "fetch", ...).
	Step string

	// Extra distinguishes calls whose inputs are not in the query, such as
	// the ids requested by a follow-up fetch.
	Extra string

	// Build creates the HTTP request. It is only called on a cache miss.
	Build func(ctx context.Context) (*http.Request, error)

	// Decode parses a response body into the adapter's own types. It is
	// called with cached and fresh bytes alike. Returning an error wrapping
	// domain.ErrRateLimited or domain.ErrUnsupportedQuery reports that
	// condition; any other error marks the response malformed.
	Decode func(body []byte) error

	// NoCache skips both reading and writing the cache.
	NoCache bool
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Client  *HTTPClient
	Cache   cache.Store
	TTL     time.Duration
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Fetcher runs provider calls through the cache, the rate limiter and the
// network, in that order. A nil Cache disables caching.
type Fetcher struct {
	source  domain.SourceType
	client  *HTTPClient
	cache   cache.Store
	ttl     time.Duration
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewFetcher creates a Fetcher for the client's source.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	source := cfg.Client.Source()
	return &Fetcher{
		source:  source,
		client:  cfg.Client,
		cache:   cfg.Cache,
		ttl:     cfg.TTL,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("component", "fetcher").Str("source", string(source)).Logger(),
	}
}

// Source returns the provider the fetcher serves.
func (f *Fetcher) Source() domain.SourceType {
	return f.source
}

// Fetch performs r for query q. Fresh responses are cached only after they
// decode cleanly, so a malformed body is never replayed from the cache.
func (f *Fetcher) Fetch(ctx context.Context, q domain.SearchQuery, r Request) error {
	key := cache.Key(cache.KeyParts{
		Source:  f.source,
		Mode:    q.Mode,
		Query:   q.Text,
		Limit:   q.Limit,
		Filters: q.Filters,
		Step:    r.Step,
		Extra:   r.Extra,
	})
	logger := observability.WithCacheContext(f.logger, key, r.Step)

	if f.cache != nil && !r.NoCache {
		if hit := f.fromCache(ctx, key, r, logger); hit {
			return nil
		}
	}

	body, err := f.fetch(ctx, r)
	if err != nil {
		return err
	}

	if err := r.Decode(body); err != nil {
		if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrUnsupportedQuery) {
			return err
		}
		return domain.MalformedResponse(f.source.DisplayName(), err)
	}

	if f.cache != nil && !r.NoCache {
		if err := f.cache.Put(ctx, key, body, f.ttl); err != nil {
			logger.Warn().Err(err).Msg("failed to write cache entry")
		} else {
			f.metrics.RecordCacheWrite(string(f.source))
		}
	}
	return nil
}

// fromCache decodes a cached response. Any failure falls through to the
// network.
func (f *Fetcher) fromCache(ctx context.Context, key string, r Request, logger zerolog.Logger) bool {
	payload, err := f.cache.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCacheMiss):
		f.metrics.RecordCacheMiss(string(f.source))
		return false
	case errors.Is(err, domain.ErrCacheCorruption):
		f.metrics.RecordCacheCorruption(string(f.source))
		logger.Warn().Err(err).Msg("corrupt cache entry, refetching")
		return false
	default:
		f.metrics.RecordCacheMiss(string(f.source))
		logger.Warn().Err(err).Msg("cache read failed, refetching")
		return false
	}

	if err := r.Decode(payload); err != nil {
		f.metrics.RecordCacheCorruption(string(f.source))
		logger.Warn().Err(err).Msg("cached response no longer decodes, refetching")
		return false
	}
	f.metrics.RecordCacheHit(string(f.source))
	logger.Debug().Msg("cache hit")
	return true
}

func (f *Fetcher) fetch(ctx context.Context, r Request) ([]byte, error) {
	req, err := r.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", r.Step, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read %s response: %w", f.source.DisplayName(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewExternalAPIError(f.source.DisplayName(), resp.StatusCode, snippet(body), nil)
	}
	return body, nil
}

// snippet shortens an error body for messages.
func snippet(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 200 {
		return s[:200] + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
