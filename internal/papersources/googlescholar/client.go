// Package googlescholar scrapes Google Scholar result pages.
//
// Scholar has no API. Results come from the public HTML, which changes
// without notice and sits behind aggressive bot detection, so this source is
// best-effort: a blocked or unrecognizable page is a source failure, never a
// crash.
package googlescholar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/papersources"
)

const (
	// DefaultBaseURL is the Scholar host.
	DefaultBaseURL = "https://scholar.google.com"

	// pageSize is the number of hits Scholar renders per page.
	pageSize = 10

	// DefaultMaxPages bounds how many pages a search walks.
	DefaultMaxPages = 5
)

// Config holds configuration for the Google Scholar scraper.
type Config struct {
	BaseURL  string
	MaxPages int
	Enabled  bool
}

// Client implements papersources.Source for Google Scholar.
type Client struct {
	config  Config
	fetcher *papersources.Fetcher
}

var _ papersources.Source = (*Client)(nil)

// New creates a new Google Scholar scraper.
func New(cfg Config, fetcher *papersources.Fetcher) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	return &Client{config: cfg, fetcher: fetcher}
}

// Search walks result pages until q.Limit hits are collected, a page comes
// back short, or MaxPages is reached.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) (records []domain.ArticleRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = domain.MalformedResponse(c.Name(), fmt.Errorf("scraper panic: %v", r))
		}
	}()

	pages := min((q.Limit+pageSize-1)/pageSize, c.config.MaxPages)
	for i := 0; i < pages; i++ {
		page, err := c.fetchPage(ctx, q, i*pageSize)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			records = append(records, resultToRecord(r))
		}
		if len(page.Results) < pageSize {
			break
		}
	}

	return papersources.Finalize(records, q.Limit), nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeGoogleScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeGoogleScholar.DisplayName()
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// BuildQuery maps a search mode onto Scholar query syntax.
func BuildQuery(mode domain.SearchMode, text string) string {
	text = strings.ReplaceAll(text, `"`, "")
	switch mode {
	case domain.SearchModeTitle:
		return `"` + text + `"`
	case domain.SearchModeAuthor:
		return `author:"` + text + `"`
	default:
		return text
	}
}

func (c *Client) fetchPage(ctx context.Context, q domain.SearchQuery, start int) (*Page, error) {
	pageURL, err := c.buildPageURL(q, start)
	if err != nil {
		return nil, fmt.Errorf("building page URL: %w", err)
	}

	var page *Page
	err = c.fetcher.Fetch(ctx, q, papersources.Request{
		Step:  "page",
		Extra: strconv.Itoa(start),
		Build: func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "text/html,application/xhtml+xml")
			req.Header.Set("Accept-Language", "en-US,en;q=0.8")
			return req, nil
		},
		Decode: func(body []byte) error {
			p, err := ParsePage(body)
			if err != nil {
				return err
			}
			page = p
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) buildPageURL(q domain.SearchQuery, start int) (string, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/scholar"

	params := url.Values{}
	params.Set("q", BuildQuery(q.Mode, q.Text))
	params.Set("hl", "en")
	params.Set("as_sdt", "0,5")
	if start > 0 {
		params.Set("start", strconv.Itoa(start))
	}
	if q.Filters.YearMin != 0 {
		params.Set("as_ylo", strconv.Itoa(q.Filters.YearMin))
	}
	if q.Filters.YearMax != 0 {
		params.Set("as_yhi", strconv.Itoa(q.Filters.YearMax))
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func resultToRecord(r Result) domain.ArticleRecord {
	rec := domain.NewArticleRecord(domain.SourceTypeGoogleScholar, r.ClusterID)
	rec.Title = r.Title
	rec.URL = r.URL
	rec.DOI = doiFromURL(r.URL)
	rec.Authors = r.Authors
	rec.Venue = r.Venue
	rec.Year = r.Year
	rec.Abstract = r.Snippet
	rec.CitationCount = r.CitedBy
	return rec
}
