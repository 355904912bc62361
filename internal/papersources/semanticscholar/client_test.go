package semanticscholar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/papersources"
	"github.com/helixir/research-finder/internal/papersources/sourcetest"
)

func intPtr(n int) *int { return &n }

func TestNew(t *testing.T) {
	t.Run("applies default base URL", func(t *testing.T) {
		client := New(Config{Enabled: true}, nil)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	})

	t.Run("implements Source", func(t *testing.T) {
		client := New(Config{Enabled: true}, nil)
		assert.Equal(t, domain.SourceTypeSemanticScholar, client.SourceType())
		assert.Equal(t, "Semantic Scholar", client.Name())
		assert.True(t, client.IsEnabled())
		assert.False(t, New(Config{}, nil).IsEnabled())
	})
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		mode domain.SearchMode
		want string
	}{
		{domain.SearchModeKeyword, "deep learning"},
		{domain.SearchModeTitle, `"deep learning"`},
		{domain.SearchModeAuthor, `author:"deep learning"`},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.mode, "deep learning"))
		})
	}
}

func TestClient_Search(t *testing.T) {
	t.Run("successful search returns records", func(t *testing.T) {
		response := SearchResponse{
			Total: 150,
			Next:  10,
			Data: []PaperResult{
				{
					PaperID:  "abc123",
					Title:    "CRISPR Gene Editing: A Review",
					Abstract: "This paper reviews CRISPR technology...",
					Year:     intPtr(2023),
					Venue:    "Nature Reviews",
					URL:      "https://www.semanticscholar.org/paper/abc123",
					Authors: []Author{
						{AuthorID: "auth1", Name: "Jane Doe"},
						{AuthorID: "auth2", Name: "John Smith"},
					},
					CitationCount: intPtr(50),
					OpenAccessPDF: &OpenAccessPDF{URL: "https://example.com/paper.pdf", License: "CCBY"},
					ExternalIDs:   &ExternalIDs{DOI: "10.1038/S41576-023-00001-1", PubMed: "12345678"},
				},
				{
					PaperID: "def456",
					Title:   "Gene Therapy Applications",
					Authors: []Author{{Name: "Alice Johnson"}},
				},
				{PaperID: "empty"},
			},
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/paper/search", r.URL.Path)
			assert.Equal(t, "CRISPR gene editing", r.URL.Query().Get("query"))
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			assert.Contains(t, r.URL.Query().Get("fields"), "externalIds")
			assert.Empty(t, r.URL.Query().Get("year"))
			assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		fetcher := sourcetest.NewFetcher(t, domain.SourceTypeSemanticScholar, sourcetest.Options{
			APIKey: "secret", APIKeyHeader: APIKeyHeader,
		})
		client := New(Config{BaseURL: server.URL, Enabled: true}, fetcher)

		q := sourcetest.Query(t, domain.SearchModeKeyword, "CRISPR gene editing", 10, domain.Filters{})
		records, err := client.Search(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, records, 2, "records without title or DOI are dropped")

		first := records[0]
		assert.Equal(t, "CRISPR Gene Editing: A Review", first.Title)
		assert.Equal(t, "10.1038/s41576-023-00001-1", first.DOI)
		assert.Equal(t, []string{"Jane Doe", "John Smith"}, first.Authors)
		assert.Equal(t, 2023, first.Year)
		assert.Equal(t, "Nature Reviews", first.Venue)
		require.NotNil(t, first.CitationCount)
		assert.Equal(t, 50, *first.CitationCount)
		assert.Equal(t, "https://www.semanticscholar.org/paper/abc123", first.URL)
		assert.Equal(t, "CCBY", first.License)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeSemanticScholar}, first.Sources)
		assert.Equal(t, "abc123", first.RawID())

		second := records[1]
		assert.Zero(t, second.Year)
		assert.Nil(t, second.CitationCount, "missing count stays unknown")
	})

	t.Run("sends filters server-side", func(t *testing.T) {
		var got atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got.Store(r.URL.Query())
			w.Write([]byte(`{"total":0,"data":[]}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Enabled: true},
			sourcetest.NewFetcher(t, domain.SourceTypeSemanticScholar, sourcetest.Options{}))

		tests := []struct {
			name    string
			filters domain.Filters
			year    string
			cites   string
		}{
			{"range", domain.Filters{YearMin: 2018, YearMax: 2022}, "2018-2022", ""},
			{"open max", domain.Filters{YearMin: 2018}, "2018-", ""},
			{"open min", domain.Filters{YearMax: 2022}, "-2022", ""},
			{"citations", domain.Filters{MinCitations: 5}, "", "5"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				q := sourcetest.Query(t, domain.SearchModeTitle, "attention", 500, tt.filters)
				records, err := client.Search(context.Background(), q)
				require.NoError(t, err)
				assert.Empty(t, records)

				params := got.Load().(url.Values)
				assert.Equal(t, []string{`"attention"`}, params["query"])
				assert.Equal(t, []string{"100"}, params["limit"], "limit is capped at the page size")
				if tt.year != "" {
					assert.Equal(t, []string{tt.year}, params["year"])
				} else {
					assert.NotContains(t, params, "year")
				}
				if tt.cites != "" {
					assert.Equal(t, []string{tt.cites}, params["minCitationCount"])
				}
			})
		}
	})

	t.Run("caps results at the query limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[{"title":"A"},{"title":"B"},{"title":"C"}]}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Enabled: true},
			sourcetest.NewFetcher(t, domain.SourceTypeSemanticScholar, sourcetest.Options{}))
		records, err := client.Search(context.Background(), sourcetest.Query(t, "", "x", 2, domain.Filters{}))
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("second identical search is served from cache", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte(`{"data":[{"paperId":"p1","title":"Cached"}]}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Enabled: true},
			sourcetest.NewFetcher(t, domain.SourceTypeSemanticScholar, sourcetest.Options{Cached: true}))
		q := sourcetest.Query(t, "", "cached query", 5, domain.Filters{})

		first, err := client.Search(context.Background(), q)
		require.NoError(t, err)
		second, err := client.Search(context.Background(), q)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), hits.Load())
	})
}

func TestClient_SearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		reason domain.FailureReason
	}{
		{"rate limited", http.StatusTooManyRequests, `{"message":"Too Many Requests"}`, domain.ReasonRateLimited},
		{"bad request", http.StatusBadRequest, `{"error":"Unrecognized or unsupported fields"}`, domain.ReasonUnsupportedQuery},
		{"server error", http.StatusInternalServerError, `oops`, domain.ReasonNetwork},
		{"malformed", http.StatusOK, `{"data":[`, domain.ReasonMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := New(Config{BaseURL: server.URL, Enabled: true},
				sourcetest.NewFetcher(t, domain.SourceTypeSemanticScholar, sourcetest.Options{}))
			records, err := client.Search(context.Background(), sourcetest.Query(t, "", "q", 5, domain.Filters{}))
			require.Error(t, err)
			assert.Nil(t, records)

			se := domain.ClassifySourceError(client.SourceType(), err)
			assert.Equal(t, tt.reason, se.Reason)
		})
	}

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		client := New(Config{BaseURL: "http://127.0.0.1:1", Enabled: true},
			sourcetest.NewFetcher(t, domain.SourceTypeSemanticScholar, sourcetest.Options{}))
		_, err := client.Search(ctx, sourcetest.Query(t, "", "q", 5, domain.Filters{}))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

var _ papersources.Source = (*Client)(nil)
