package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// maxPageSize bounds max_results for a single request.
	maxPageSize = 2000

	// venue is reported for every arXiv record.
	venue = "arXiv"

	// errorIDPrefix marks the pseudo-entry arXiv returns for a bad query.
	errorIDPrefix = "http://arxiv.org/api/errors"
)

// arxivIDRegex extracts the arXiv ID from the full URL.
// Matches patterns like "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

// Client implements papersources.Source for arXiv.
type Client struct {
	config  Config
	fetcher *papersources.Fetcher
}

// Ensure Client implements Source interface.
var _ papersources.Source = (*Client)(nil)

// New creates a new arXiv client.
func New(cfg Config, fetcher *papersources.Fetcher) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{config: cfg, fetcher: fetcher}
}

// Search queries arXiv for papers matching q.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) ([]domain.ArticleRecord, error) {
	searchURL, err := c.buildSearchURL(q)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var feed Feed
	err = c.fetcher.Fetch(ctx, q, papersources.Request{
		Step: "search",
		Build: func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		},
		Decode: func(body []byte) error {
			var f Feed
			if err := papersources.DecodeXML(body, &f); err != nil {
				return err
			}
			if err := queryError(f); err != nil {
				return err
			}
			feed = f
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.ArticleRecord, 0, len(feed.Entries))
	for i := range feed.Entries {
		records = append(records, entryToRecord(&feed.Entries[i]))
	}
	return papersources.Finalize(records, q.Limit), nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeArXiv.DisplayName()
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// BuildQuery maps a search mode onto an arXiv field-prefixed phrase query.
func BuildQuery(mode domain.SearchMode, text string) string {
	text = strings.ReplaceAll(text, `"`, "")
	switch mode {
	case domain.SearchModeTitle:
		return fmt.Sprintf(`ti:"%s"`, text)
	case domain.SearchModeAuthor:
		return fmt.Sprintf(`au:"%s"`, text)
	default:
		return fmt.Sprintf(`all:"%s"`, text)
	}
}

// buildSearchURL constructs the arXiv search API URL.
func (c *Client) buildSearchURL(q domain.SearchQuery) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	searchQuery := BuildQuery(q.Mode, q.Text)
	if filter := dateFilter(q.Filters); filter != "" {
		searchQuery += " AND " + filter
	}

	params := url.Values{}
	params.Set("search_query", searchQuery)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(min(q.Limit, maxPageSize)))

	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

// dateFilter constructs the arXiv submittedDate range for the year filters.
func dateFilter(f domain.Filters) string {
	if !f.HasYearRange() {
		return ""
	}
	from, to := "*", "*"
	if f.YearMin != 0 {
		from = fmt.Sprintf("%d01010000", f.YearMin)
	}
	if f.YearMax != 0 {
		to = fmt.Sprintf("%d12312359", f.YearMax)
	}
	return fmt.Sprintf("submittedDate:[%s TO %s]", from, to)
}

// queryError reports the error pseudo-entry arXiv sends, with status 200,
// for queries it cannot parse.
func queryError(f Feed) error {
	if len(f.Entries) == 1 && strings.HasPrefix(f.Entries[0].ID, errorIDPrefix) {
		return fmt.Errorf("arXiv rejected query: %s: %w",
			strings.Join(strings.Fields(f.Entries[0].Summary), " "), domain.ErrUnsupportedQuery)
	}
	return nil
}

// entryToRecord converts an arXiv Atom entry to an article record.
func entryToRecord(entry *Entry) domain.ArticleRecord {
	arxivID := extractArXivID(strings.TrimSpace(entry.ID))

	rec := domain.NewArticleRecord(domain.SourceTypeArXiv, arxivID)
	rec.Title = entry.Title
	rec.Abstract = entry.Summary
	rec.Year = domain.NormalizeYear(entry.Published)
	rec.Venue = venue
	rec.DOI = strings.TrimSpace(entry.DOI)
	if rec.DOI == "" && arxivID != "" {
		rec.DOI = "10.48550/arXiv." + arxivID
	}

	rec.License = strings.TrimSpace(entry.License)
	if rec.License == "" {
		rec.License = strings.TrimSpace(entry.Rights)
	}

	rec.URL = strings.TrimSpace(entry.ID)
	for _, link := range entry.Links {
		if link.Rel == "alternate" && link.Href != "" {
			rec.URL = link.Href
			break
		}
	}

	rec.Authors = make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		rec.Authors = append(rec.Authors, a.Name)
	}
	return rec
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" → "2301.12345"
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}
