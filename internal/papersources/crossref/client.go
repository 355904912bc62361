package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/papersources"
)

const (
	// DefaultBaseURL is the default CrossRef API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// maxRows is the CrossRef rows ceiling.
	maxRows = 1000

	// selectFields limits the payload to what records are built from.
	selectFields = "DOI,URL,title,container-title,author,abstract," +
		"is-referenced-by-count,published,issued,created,license"
)

// Config holds configuration for the CrossRef client.
type Config struct {
	// BaseURL is the CrossRef API base URL.
	BaseURL string

	// Mailto identifies the caller for the polite pool.
	Mailto string

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

// Client implements papersources.Source for CrossRef.
type Client struct {
	config  Config
	fetcher *papersources.Fetcher
}

var _ papersources.Source = (*Client)(nil)

// New creates a new CrossRef client.
func New(cfg Config, fetcher *papersources.Fetcher) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{config: cfg, fetcher: fetcher}
}

// Search queries CrossRef for works matching q.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) ([]domain.ArticleRecord, error) {
	searchURL, err := c.buildSearchURL(q)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var resp WorksResponse
	err = c.fetcher.Fetch(ctx, q, papersources.Request{
		Step: "search",
		Build: func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		},
		Decode: func(body []byte) error {
			var r WorksResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return err
			}
			if r.Status != "" && r.Status != "ok" {
				return fmt.Errorf("crossref status %q", r.Status)
			}
			resp = r
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.ArticleRecord, 0, len(resp.Message.Items))
	for i := range resp.Message.Items {
		records = append(records, itemToRecord(&resp.Message.Items[i]))
	}
	return papersources.Finalize(records, q.Limit), nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeCrossRef
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeCrossRef.DisplayName()
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// QueryParam returns the query parameter a search mode is sent as.
func QueryParam(mode domain.SearchMode) string {
	switch mode {
	case domain.SearchModeTitle:
		return "query.bibliographic"
	case domain.SearchModeAuthor:
		return "query.author"
	default:
		return "query"
	}
}

func (c *Client) buildSearchURL(q domain.SearchQuery) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/works"

	params := url.Values{}
	params.Set(QueryParam(q.Mode), q.Text)
	params.Set("rows", strconv.Itoa(min(q.Limit, maxRows)))
	params.Set("select", selectFields)

	var filters []string
	if q.Filters.YearMin != 0 {
		filters = append(filters, fmt.Sprintf("from-pub-date:%d", q.Filters.YearMin))
	}
	if q.Filters.YearMax != 0 {
		filters = append(filters, fmt.Sprintf("until-pub-date:%d", q.Filters.YearMax))
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, ","))
	}
	if c.config.Mailto != "" {
		params.Set("mailto", c.config.Mailto)
	}

	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

// itemToRecord converts a CrossRef work to an article record.
func itemToRecord(item *Item) domain.ArticleRecord {
	rec := domain.NewArticleRecord(domain.SourceTypeCrossRef, item.DOI)
	rec.DOI = item.DOI
	rec.URL = item.URL
	rec.Abstract = item.Abstract
	rec.CitationCount = item.IsReferencedByCount
	rec.Year = itemYear(item)

	if len(item.Title) > 0 {
		rec.Title = item.Title[0]
	}
	if len(item.ContainerTitle) > 0 {
		rec.Venue = item.ContainerTitle[0]
	}
	if len(item.License) > 0 {
		rec.License = item.License[0].URL
	}

	for _, a := range item.Author {
		switch {
		case a.Given != "" && a.Family != "":
			rec.Authors = append(rec.Authors, a.Given+" "+a.Family)
		case a.Family != "":
			rec.Authors = append(rec.Authors, a.Family)
		case a.Name != "":
			rec.Authors = append(rec.Authors, a.Name)
		}
	}
	return rec
}

// itemYear takes the first populated of published, issued and created.
func itemYear(item *Item) int {
	for _, d := range []*DateInfo{item.Published, item.Issued, item.Created} {
		if y := d.year(); y != 0 {
			return y
		}
	}
	return 0
}

func (d *DateInfo) year() int {
	if d == nil {
		return 0
	}
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 && d.DateParts[0][0] > 0 {
		return d.DateParts[0][0]
	}
	return domain.NormalizeYear(d.DateTime)
}
