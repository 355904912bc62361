package crossref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/papersources/sourcetest"
)

const worksPayload = `{
  "status": "ok",
  "message-type": "work-list",
  "message": {
    "total-results": 3,
    "items": [
      {
        "DOI": "10.1145/3065386",
        "URL": "https://doi.org/10.1145/3065386",
        "title": ["ImageNet classification with deep convolutional neural networks"],
        "container-title": ["Communications of the ACM"],
        "author": [
          {"given": "Alex", "family": "Krizhevsky"},
          {"given": "Ilya", "family": "Sutskever"},
          {"family": "Hinton"},
          {"name": "The ImageNet Consortium"}
        ],
        "abstract": "<jats:p>We trained a large, deep convolutional neural network.</jats:p>",
        "is-referenced-by-count": 120000,
        "published": {"date-parts": [[2017, 5, 24]]},
        "created": {"date-parts": [[2017, 5, 1]], "date-time": "2017-05-01T10:00:00Z"},
        "license": [{"URL": "http://www.acm.org/publications/policies/copyright_policy#Background", "content-version": "vor"}]
      },
      {
        "DOI": "10.5555/created-only",
        "title": ["Only Created Date"],
        "published": {"date-parts": [[null]]},
        "created": {"date-parts": [[2009, 1, 2]], "date-time": "2009-01-02T00:00:00Z"}
      },
      {"DOI": "", "title": []}
    ]
  }
}`

func TestNew(t *testing.T) {
	client := New(Config{Enabled: true}, nil)
	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.Equal(t, domain.SourceTypeCrossRef, client.SourceType())
	assert.Equal(t, "CrossRef", client.Name())
	assert.True(t, client.IsEnabled())
}

func TestQueryParam(t *testing.T) {
	assert.Equal(t, "query", QueryParam(domain.SearchModeKeyword))
	assert.Equal(t, "query.bibliographic", QueryParam(domain.SearchModeTitle))
	assert.Equal(t, "query.author", QueryParam(domain.SearchModeAuthor))
}

func TestClient_Search(t *testing.T) {
	t.Run("parses works", func(t *testing.T) {
		var got atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works", r.URL.Path)
			got.Store(r.URL.Query())
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(worksPayload))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Mailto: "me@example.org", Enabled: true},
			sourcetest.NewFetcher(t, domain.SourceTypeCrossRef, sourcetest.Options{}))
		records, err := client.Search(context.Background(),
			sourcetest.Query(t, domain.SearchModeKeyword, "imagenet", 10, domain.Filters{}))
		require.NoError(t, err)
		require.Len(t, records, 2)

		params := got.Load().(url.Values)
		assert.Equal(t, "imagenet", params.Get("query"))
		assert.Equal(t, "10", params.Get("rows"))
		assert.Equal(t, "me@example.org", params.Get("mailto"))
		assert.Equal(t, selectFields, params.Get("select"))
		assert.Empty(t, params.Get("filter"))

		first := records[0]
		assert.Equal(t, "ImageNet classification with deep convolutional neural networks", first.Title)
		assert.Equal(t, "10.1145/3065386", first.DOI)
		assert.Equal(t, []string{"Alex Krizhevsky", "Ilya Sutskever", "Hinton", "The ImageNet Consortium"}, first.Authors)
		assert.Equal(t, 2017, first.Year)
		assert.Equal(t, "Communications of the ACM", first.Venue)
		assert.Equal(t, "We trained a large, deep convolutional neural network.", first.Abstract)
		require.NotNil(t, first.CitationCount)
		assert.Equal(t, 120000, *first.CitationCount)
		assert.Equal(t, "https://doi.org/10.1145/3065386", first.URL)
		assert.Contains(t, first.License, "acm.org")

		second := records[1]
		assert.Equal(t, 2009, second.Year, "falls back to created")
		assert.Nil(t, second.CitationCount)
	})

	t.Run("modes and year filters", func(t *testing.T) {
		var got atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got.Store(r.URL.Query())
			w.Write([]byte(`{"status":"ok","message":{"items":[]}}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Enabled: true},
			sourcetest.NewFetcher(t, domain.SourceTypeCrossRef, sourcetest.Options{}))

		tests := []struct {
			name    string
			mode    domain.SearchMode
			filters domain.Filters
			param   string
			filter  string
		}{
			{"title both years", domain.SearchModeTitle, domain.Filters{YearMin: 2015, YearMax: 2020},
				"query.bibliographic", "from-pub-date:2015,until-pub-date:2020"},
			{"author min year", domain.SearchModeAuthor, domain.Filters{YearMin: 2015}, "query.author", "from-pub-date:2015"},
			{"keyword max year", domain.SearchModeKeyword, domain.Filters{YearMax: 2020}, "query", "until-pub-date:2020"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				records, err := client.Search(context.Background(), sourcetest.Query(t, tt.mode, "Smith", 1000, tt.filters))
				require.NoError(t, err)
				assert.Empty(t, records)

				params := got.Load().(url.Values)
				assert.Equal(t, "Smith", params.Get(tt.param))
				assert.Equal(t, tt.filter, params.Get("filter"))
				assert.Equal(t, "1000", params.Get("rows"))
				assert.Empty(t, params.Get("mailto"))
			})
		}
	})

	t.Run("failed status is malformed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"failed","message":[{"type":"x"}]}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Enabled: true},
			sourcetest.NewFetcher(t, domain.SourceTypeCrossRef, sourcetest.Options{}))
		_, err := client.Search(context.Background(), sourcetest.Query(t, "", "q", 5, domain.Filters{}))
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	})

	t.Run("bad request is an unsupported query", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status":"failed","message":[{"type":"validation-failure"}]}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Enabled: true},
			sourcetest.NewFetcher(t, domain.SourceTypeCrossRef, sourcetest.Options{}))
		_, err := client.Search(context.Background(), sourcetest.Query(t, "", "q", 5, domain.Filters{}))
		require.Error(t, err)
		assert.Equal(t, domain.ReasonUnsupportedQuery, domain.ClassifySourceError(domain.SourceTypeCrossRef, err).Reason)
	})
}

func TestItemYear(t *testing.T) {
	assert.Zero(t, itemYear(&Item{}))
	assert.Equal(t, 2001, itemYear(&Item{Issued: &DateInfo{DateParts: [][]int{{2001}}}}))
	assert.Equal(t, 1999, itemYear(&Item{Created: &DateInfo{DateTime: "1999-12-31T00:00:00Z"}}))
}
