package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// maxPerPage is the OpenAlex per_page ceiling.
	maxPerPage = 200

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"

	// selectFields limits the payload to what records are built from.
	selectFields = "id,doi,title,display_name,publication_year,cited_by_count," +
		"authorships,primary_location,best_oa_location,ids,abstract_inverted_index"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// APIKey is sent as the api_key parameter when set.
	APIKey string

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

// Client implements papersources.Source for OpenAlex.
type Client struct {
	config  Config
	fetcher *papersources.Fetcher
}

// Ensure Client implements Source interface.
var _ papersources.Source = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config, fetcher *papersources.Fetcher) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{config: cfg, fetcher: fetcher}
}

// Search queries OpenAlex for works matching q.
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
				return err
			}
			resp = r
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.ArticleRecord, 0, len(resp.Results))
	for i := range resp.Results {
		records = append(records, workToRecord(&resp.Results[i]))
	}
	return papersources.Finalize(records, q.Limit), nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeOpenAlex.DisplayName()
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(q domain.SearchQuery) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/works"

	query := url.Values{}
	filters := buildFilters(q)
	if q.Mode == domain.SearchModeKeyword || q.Mode == "" {
		query.Set("search", q.Text)
	}
	if len(filters) > 0 {
		query.Set("filter", strings.Join(filters, ","))
	}
	query.Set("per_page", strconv.Itoa(min(q.Limit, maxPerPage)))
	query.Set("select", selectFields)

	// Add mailto for polite pool
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	if c.config.APIKey != "" {
		query.Set("api_key", c.config.APIKey)
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// buildFilters constructs the filter clauses. Title and author searches are
// filters rather than the full-text search parameter.
func buildFilters(q domain.SearchQuery) []string {
	var filters []string

	// Commas separate filter clauses and cannot be escaped.
	text := strings.Join(strings.Fields(strings.ReplaceAll(q.Text, ",", " ")), " ")
	switch q.Mode {
	case domain.SearchModeTitle:
		filters = append(filters, "title.search:"+text)
	case domain.SearchModeAuthor:
		filters = append(filters, "raw_author_name.search:"+text)
	}

	f := q.Filters
	switch {
	case f.YearMin != 0 && f.YearMax != 0:
		filters = append(filters, fmt.Sprintf("publication_year:%d-%d", f.YearMin, f.YearMax))
	case f.YearMin != 0:
		filters = append(filters, fmt.Sprintf("publication_year:>%d", f.YearMin-1))
	case f.YearMax != 0:
		filters = append(filters, fmt.Sprintf("publication_year:<%d", f.YearMax+1))
	}

	if f.MinCitations > 0 {
		filters = append(filters, fmt.Sprintf("cited_by_count:>%d", f.MinCitations-1))
	}
	return filters
}

// workToRecord converts an OpenAlex Work to an article record.
func workToRecord(work *Work) domain.ArticleRecord {
	rec := domain.NewArticleRecord(domain.SourceTypeOpenAlex, normalizeOpenAlexID(work.ID))

	// display_name is usually cleaner than title
	rec.Title = work.DisplayName
	if rec.Title == "" {
		rec.Title = work.Title
	}

	rec.DOI = work.DOI
	if rec.DOI == "" {
		rec.DOI = work.IDs.DOI
	}
	rec.Year = work.PublicationYear
	rec.CitationCount = work.CitedByCount
	rec.Abstract = reconstructAbstract(work.AbstractInvertedIndex)

	rec.Authors = make([]string, 0, len(work.Authorships))
	for _, a := range work.Authorships {
		name := a.Author.DisplayName
		if name == "" {
			name = a.RawAuthorName
		}
		rec.Authors = append(rec.Authors, name)
	}

	if loc := work.PrimaryLocation; loc != nil {
		if loc.Source != nil {
			rec.Venue = loc.Source.DisplayName
		}
		rec.URL = loc.LandingPageURL
	}
	if rec.URL == "" {
		rec.URL = work.ID
	}
	if work.BestOALocation != nil {
		rec.License = work.BestOALocation.License
	}
	return rec
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(id, openAlexIDPrefix))
}

// reconstructAbstract reconstructs the abstract text from OpenAlex's inverted index format.
// OpenAlex stores abstracts as inverted indices mapping words to their positions.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against malicious payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}
	pairs := make([]posWord, 0, totalPairs)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}
	return builder.String()
}
