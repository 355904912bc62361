package httpserver

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-finder/internal/aggregator"
	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/observability"
	"github.com/helixir/research-finder/internal/papersources"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type fakeSource struct {
	sourceType domain.SourceType
	enabled    bool
	searchFn   func(ctx context.Context, q domain.SearchQuery) ([]domain.ArticleRecord, error)
	calls      atomic.Int32
	lastQuery  atomic.Value
}

func (f *fakeSource) Search(ctx context.Context, q domain.SearchQuery) ([]domain.ArticleRecord, error) {
	f.calls.Add(1)
	f.lastQuery.Store(q)
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return nil, nil
}

func (f *fakeSource) SourceType() domain.SourceType { return f.sourceType }
func (f *fakeSource) Name() string                  { return f.sourceType.DisplayName() }
func (f *fakeSource) IsEnabled() bool               { return f.enabled }

func returning(records ...domain.ArticleRecord) func(context.Context, domain.SearchQuery) ([]domain.ArticleRecord, error) {
	return func(context.Context, domain.SearchQuery) ([]domain.ArticleRecord, error) {
		return records, nil
	}
}

func record(source domain.SourceType, id, title, doi string, year int) domain.ArticleRecord {
	r := domain.NewArticleRecord(source, id)
	r.Title = title
	r.DOI = doi
	r.Year = year
	r.Authors = []string{"Jane Doe"}
	return r
}

// runnerFunc adapts a function to SearchRunner.
type runnerFunc func(ctx context.Context, req aggregator.Request) (*aggregator.Result, error)

func (f runnerFunc) Run(ctx context.Context, req aggregator.Request) (*aggregator.Result, error) {
	return f(ctx, req)
}

type testEnv struct {
	server *Server
	store  *cache.SQLiteStore
	now    time.Time
}

func newTestEnv(t *testing.T, sources ...*fakeSource) *testEnv {
	t.Helper()

	env := &testEnv{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store, err := cache.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "cache.db"),
		cache.WithSQLiteClock(func() time.Time { return env.now }))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	env.store = store

	registry := papersources.NewRegistry()
	for _, s := range sources {
		registry.Register(s)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWithRegistry("http_test", reg)
	agg := aggregator.New(registry, store, aggregator.Config{TaskTimeout: 2 * time.Second}, metrics, zerolog.Nop())

	env.server = NewServer(Config{Address: "127.0.0.1:0"}, agg, registry, store,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), zerolog.Nop())
	return env
}

func (e *testEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestSearch_MergesAndReportsFailures(t *testing.T) {
	s2 := &fakeSource{sourceType: domain.SourceTypeSemanticScholar, enabled: true,
		searchFn: returning(record(domain.SourceTypeSemanticScholar, "s1", "Deep Learning in Healthcare", "10.1/abc", 2020))}
	pubmed := &fakeSource{sourceType: domain.SourceTypePubMed, enabled: true,
		searchFn: returning(record(domain.SourceTypePubMed, "123", "Deep learning in healthcare.", "https://doi.org/10.1/ABC", 2020))}
	arxiv := &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true,
		searchFn: func(context.Context, domain.SearchQuery) ([]domain.ArticleRecord, error) {
			return nil, domain.NewRateLimitError("arXiv", time.Second)
		}}
	env := newTestEnv(t, s2, pubmed, arxiv)

	rr := env.do(t, http.MethodGet, "/api/v1/search?q=deep+learning&limit=5")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	resp := decode[searchResponse](t, rr)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "keyword", resp.Query.Mode)
	assert.Equal(t, 5, resp.Query.Limit)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, 1, resp.Merged)
	assert.Equal(t, []string{"Semantic Scholar", "PubMed"}, resp.Records[0].Sources)
	assert.Equal(t, "10.1/abc", resp.Records[0].DOI)
	assert.NotEmpty(t, resp.Records[0].Reference)

	require.Contains(t, resp.Failures, "arxiv")
	assert.Equal(t, "rate_limited", resp.Failures["arxiv"].Reason)
	require.Len(t, resp.Sources, 3)
	for _, o := range resp.Sources {
		if o.Source == "arxiv" {
			assert.Equal(t, aggregator.StatusFailed, o.Status)
		} else {
			assert.Equal(t, aggregator.StatusSucceeded, o.Status)
		}
	}
}

func TestSearch_PassesParameters(t *testing.T) {
	src := &fakeSource{sourceType: domain.SourceTypeCrossRef, enabled: true}
	other := &fakeSource{sourceType: domain.SourceTypeOpenAlex, enabled: true}
	env := newTestEnv(t, src, other)

	rr := env.do(t, http.MethodGet,
		"/api/v1/search?q=%20CRISPR%20&mode=title&limit=7&year_min=2010&year_max=2020&min_citations=3&sources=crossref")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	require.EqualValues(t, 1, src.calls.Load())
	assert.EqualValues(t, 0, other.calls.Load(), "unselected sources are not dispatched")

	q := src.lastQuery.Load().(domain.SearchQuery)
	assert.Equal(t, domain.SearchModeTitle, q.Mode)
	assert.Equal(t, "CRISPR", q.Text)
	assert.Equal(t, 7, q.Limit)
	assert.Equal(t, domain.Filters{YearMin: 2010, YearMax: 2020, MinCitations: 3}, q.Filters)

	resp := decode[searchResponse](t, rr)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Records, "empty results encode as an array")
	assert.Empty(t, resp.Failures)
}

func TestSearch_RepeatedAndCommaSeparatedSources(t *testing.T) {
	a := &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true}
	b := &fakeSource{sourceType: domain.SourceTypePubMed, enabled: true}
	c := &fakeSource{sourceType: domain.SourceTypeOpenAlex, enabled: true}
	env := newTestEnv(t, a, b, c)

	rr := env.do(t, http.MethodGet, "/api/v1/search?q=x&sources=arxiv,pubmed&sources=pubmed")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
	assert.EqualValues(t, 0, c.calls.Load())
}

func TestSearch_AllSourcesFailStillSucceeds(t *testing.T) {
	failing := func(context.Context, domain.SearchQuery) ([]domain.ArticleRecord, error) {
		return nil, errors.New("connection refused")
	}
	env := newTestEnv(t,
		&fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true, searchFn: failing},
		&fakeSource{sourceType: domain.SourceTypeCrossRef, enabled: true, searchFn: failing},
	)

	rr := env.do(t, http.MethodGet, "/api/v1/search?q=anything")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused", "error text is not echoed")

	resp := decode[searchResponse](t, rr)
	assert.Equal(t, 0, resp.Count)
	assert.Len(t, resp.Failures, 2)
	assert.Equal(t, "network", resp.Failures["crossref"].Reason)
}

func TestSearch_InvalidRequests(t *testing.T) {
	enabled := &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true}
	disabled := &fakeSource{sourceType: domain.SourceTypePubMed, enabled: false}
	env := newTestEnv(t, enabled, disabled)

	tests := []struct {
		name      string
		query     string
		wantField string
	}{
		{"missing q", "", "q"},
		{"blank q", "q=%20%20", "q"},
		{"bad mode", "q=x&mode=venue", "mode"},
		{"non-numeric limit", "q=x&limit=ten", "limit"},
		{"negative limit", "q=x&limit=-1", "limit"},
		{"limit too large", "q=x&limit=5000", "limit"},
		{"inverted years", "q=x&year_min=2020&year_max=2010", "year"},
		{"bad year", "q=x&year_min=20", "yearmin"},
		{"unknown source", "q=x&sources=scopus", "source"},
		{"disabled source", "q=x&sources=pubmed", "source"},
		{"bad cache directive", "q=x&cache=sometimes", "cache_directive"},
		{"bad format", "q=x&format=docx", "format"},
		{"oversized q", "q=" + strings.Repeat("a", 1001), "text"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/api/v1/search?"+tc.query)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			body := decode[map[string]string](t, rr)
			assert.Contains(t, body["error"], tc.wantField)
		})
	}
	assert.EqualValues(t, 0, enabled.calls.Load(), "invalid requests never dispatch")
}

func TestSearch_NoEnabledSources(t *testing.T) {
	env := newTestEnv(t, &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: false})

	rr := env.do(t, http.MethodGet, "/api/v1/search?q=x")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "no sources are enabled", decode[map[string]string](t, rr)["error"])
}

func TestSearch_Download(t *testing.T) {
	src := &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true,
		searchFn: returning(
			record(domain.SourceTypeArXiv, "2101.1", "First paper", "", 2021),
			record(domain.SourceTypeArXiv, "2101.2", "Second paper", "", 2022),
		)}
	env := newTestEnv(t, src)

	t.Run("csv", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/search?q=paper&format=csv")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))

		runID := rr.Header().Get("X-Run-ID")
		require.NotEmpty(t, runID)
		assert.Equal(t, fmt.Sprintf(`attachment; filename="results_%s.csv"`, runID), rr.Header().Get("Content-Disposition"))

		rows, err := csv.NewReader(rr.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "Title", rows[0][0])
		assert.Equal(t, "First paper", rows[1][0])
	})

	t.Run("bibtex", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/search?q=paper&format=bib")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, strings.HasSuffix(rr.Header().Get("Content-Disposition"), `.bib"`))
		assert.Equal(t, 2, strings.Count(rr.Body.String(), "@article{"))
	})
}

func TestSearch_CacheDirective(t *testing.T) {
	src := &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true}
	env := newTestEnv(t, src)

	ctx := context.Background()
	require.NoError(t, env.store.Put(ctx, "stale", []byte("x"), time.Minute))
	require.NoError(t, env.store.Put(ctx, "fresh", []byte("y"), time.Hour))
	env.now = env.now.Add(10 * time.Minute)

	rr := env.do(t, http.MethodGet, "/api/v1/search?q=x&cache=expired")
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[searchResponse](t, rr)
	assert.Equal(t, "clear_expired", resp.CacheDirective)
	assert.Equal(t, 1, resp.CacheCleared)

	_, err := env.store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestWriteDomainError_Mappings(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{"validation", domain.NewValidationError("q", "query text is required"), http.StatusBadRequest, "validation error: q: query text is required"},
		{"bare invalid input", domain.ErrInvalidInput, http.StatusBadRequest, "invalid input"},
		{"no sources", fmt.Errorf("%w: no sources are enabled", domain.ErrNoSources), http.StatusBadRequest, "no sources are enabled"},
		{"rate limited", domain.NewRateLimitError("PubMed", time.Second), http.StatusTooManyRequests, "rate limited"},
		{"cancelled", fmt.Errorf("run: %w: %w", domain.ErrCancelled, context.Canceled), http.StatusServiceUnavailable, "search cancelled"},
		{"internal", errors.New(`open /var/cache/research.db: permission denied`), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeDomainError(rr, tc.err)
			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Equal(t, tc.expectedBody, decode[map[string]string](t, rr)["error"])
		})
	}

	t.Run("nil is a no-op", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeDomainError(rr, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Zero(t, rr.Body.Len())
	})
}

func TestSearch_RunnerErrors(t *testing.T) {
	registry := papersources.NewRegistry()
	runner := runnerFunc(func(ctx context.Context, req aggregator.Request) (*aggregator.Result, error) {
		return nil, fmt.Errorf("aggregation run r1: %w: %w", domain.ErrCancelled, context.Canceled)
	})
	srv := NewServer(Config{}, runner, registry, nil, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

// ---------------------------------------------------------------------------
// Sources and cache
// ---------------------------------------------------------------------------

func TestListSources(t *testing.T) {
	env := newTestEnv(t,
		&fakeSource{sourceType: domain.SourceTypeGoogleScholar, enabled: false},
		&fakeSource{sourceType: domain.SourceTypeSemanticScholar, enabled: true},
	)

	rr := env.do(t, http.MethodGet, "/api/v1/sources")
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[listSourcesResponse](t, rr)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, sourceResponse{ID: "semantic_scholar", Name: "Semantic Scholar", Enabled: true}, resp.Sources[0])
	assert.Equal(t, sourceResponse{ID: "google_scholar", Name: "Google Scholar", Enabled: false}, resp.Sources[1])
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t, &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true})
	ctx := context.Background()

	require.NoError(t, env.store.Put(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, env.store.Put(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, env.store.Put(ctx, "c", []byte("3"), time.Hour))
	env.now = env.now.Add(5 * time.Minute)

	rr := env.do(t, http.MethodGet, "/api/v1/cache")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, cacheStatsResponse{Entries: 3, Expired: 1}, decode[cacheStatsResponse](t, rr))

	rr = env.do(t, http.MethodDelete, "/api/v1/cache")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, clearCacheResponse{Scope: "clear_expired", Removed: 1}, decode[clearCacheResponse](t, rr))

	rr = env.do(t, http.MethodDelete, "/api/v1/cache?scope=all")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, clearCacheResponse{Scope: "clear_all", Removed: 2}, decode[clearCacheResponse](t, rr))

	for _, scope := range []string{"none", "bogus"} {
		rr = env.do(t, http.MethodDelete, "/api/v1/cache?scope="+scope)
		assert.Equal(t, http.StatusBadRequest, rr.Code, scope)
	}
}

func TestCacheEndpoints_Disabled(t *testing.T) {
	srv := NewServer(Config{}, runnerFunc(nil), papersources.NewRegistry(), nil, nil, zerolog.Nop())

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(method, "/api/v1/cache", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, method)
	}
}

// ---------------------------------------------------------------------------
// Health and metrics
// ---------------------------------------------------------------------------

func TestHealthAndReadiness(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		env := newTestEnv(t, &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true})

		rr := env.do(t, http.MethodGet, "/healthz")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, map[string]string{"status": "ok", "cache": "healthy"}, decode[map[string]string](t, rr))

		rr = env.do(t, http.MethodGet, "/readyz")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ready", decode[map[string]any](t, rr)["status"])
	})

	t.Run("no enabled sources", func(t *testing.T) {
		env := newTestEnv(t, &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: false})
		rr := env.do(t, http.MethodGet, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("closed cache", func(t *testing.T) {
		env := newTestEnv(t, &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true})
		require.NoError(t, env.store.Close())

		rr := env.do(t, http.MethodGet, "/healthz")
		require.Equal(t, http.StatusOK, rr.Code, "liveness does not depend on the cache")
		assert.Equal(t, "unhealthy", decode[map[string]string](t, rr)["cache"])

		rr = env.do(t, http.MethodGet, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeSource{sourceType: domain.SourceTypeArXiv, enabled: true})

	rr := env.do(t, http.MethodGet, "/api/v1/search?q=x")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, rr.Body.String(), "http_test_runs_completed_total 1")
}
