package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// APIKeyHeader is the header name for the Semantic Scholar API key.
	APIKeyHeader = "x-api-key"

	// maxPageSize is the largest limit the search endpoint accepts.
	maxPageSize = 100

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,externalIds,title,abstract,year,venue,url,authors,citationCount,openAccessPdf"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Enabled indicates whether this source may be dispatched.
	Enabled bool
}

// Client implements papersources.Source for Semantic Scholar.
type Client struct {
	fetcher *papersources.Fetcher
	config  Config
}

// Compile-time check that Client implements papersources.Source.
var _ papersources.Source = (*Client)(nil)

// New creates a Semantic Scholar client. The fetcher's HTTP client carries the
// API key header when one is configured.
func New(cfg Config, fetcher *papersources.Fetcher) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{fetcher: fetcher, config: cfg}
}

// Search queries Semantic Scholar for papers matching q. Year and citation
// filters are applied server-side.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) ([]domain.ArticleRecord, error) {
	searchURL, err := c.buildSearchURL(q)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var resp SearchResponse
	err = c.fetcher.Fetch(ctx, q, papersources.Request{
		Step: "search",
		Build: func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		},
		Decode: func(body []byte) error {
			var r SearchResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			resp = r
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.ArticleRecord, 0, len(resp.Data))
	for _, p := range resp.Data {
		records = append(records, convertToRecord(p))
	}
	return papersources.Finalize(records, q.Limit), nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeSemanticScholar.DisplayName()
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// BuildQuery maps a search mode onto the search endpoint's query syntax.
// The endpoint has no field selectors, so title searches use an exact phrase.
func BuildQuery(mode domain.SearchMode, text string) string {
	switch mode {
	case domain.SearchModeTitle:
		return fmt.Sprintf("%q", text)
	case domain.SearchModeAuthor:
		return fmt.Sprintf("author:%q", text)
	default:
		return text
	}
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(q domain.SearchQuery) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	searchURL := baseURL.JoinPath("paper", "search")

	params := searchURL.Query()
	params.Set("query", BuildQuery(q.Mode, q.Text))
	params.Set("fields", paperFields)
	params.Set("limit", strconv.Itoa(min(q.Limit, maxPageSize)))

	if year := yearRange(q.Filters); year != "" {
		params.Set("year", year)
	}
	if q.Filters.MinCitations > 0 {
		params.Set("minCitationCount", strconv.Itoa(q.Filters.MinCitations))
	}

	searchURL.RawQuery = params.Encode()
	return searchURL.String(), nil
}

// yearRange renders the filters in the API's "min-max" form; either end may
// be open.
func yearRange(f domain.Filters) string {
	switch {
	case f.YearMin != 0 && f.YearMax != 0:
		return fmt.Sprintf("%d-%d", f.YearMin, f.YearMax)
	case f.YearMin != 0:
		return fmt.Sprintf("%d-", f.YearMin)
	case f.YearMax != 0:
		return fmt.Sprintf("-%d", f.YearMax)
	}
	return ""
}

// convertToRecord converts a single API paper result to an article record.
func convertToRecord(p PaperResult) domain.ArticleRecord {
	rec := domain.NewArticleRecord(domain.SourceTypeSemanticScholar, p.PaperID)
	rec.Title = p.Title
	rec.Abstract = p.Abstract
	rec.Venue = p.Venue
	rec.URL = p.URL
	rec.CitationCount = p.CitationCount
	if p.Year != nil {
		rec.Year = *p.Year
	}
	if p.ExternalIDs != nil {
		rec.DOI = p.ExternalIDs.DOI
	}
	if p.OpenAccessPDF != nil {
		rec.License = p.OpenAccessPDF.License
		if rec.URL == "" {
			rec.URL = p.OpenAccessPDF.URL
		}
	}

	rec.Authors = make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		rec.Authors = append(rec.Authors, a.Name)
	}
	return rec
}
