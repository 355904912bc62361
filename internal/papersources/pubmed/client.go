package pubmed

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
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultICiteURL is the base URL for the NIH iCite citation API.
	DefaultICiteURL = "https://icite.od.nih.gov/api"

	// ArticleURLPrefix is prepended to a PMID to form the article URL.
	ArticleURLPrefix = "https://pubmed.ncbi.nlm.nih.gov/"

	// MaxResultsLimit is the maximum results allowed per request by the API.
	MaxResultsLimit = 10000

	// E-utilities requires both ends of a date range.
	openMinDate = "1800"
	openMaxDate = "3000"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// ICiteURL is the base URL for citation lookups.
	// Defaults to DefaultICiteURL if empty.
	ICiteURL string

	// APIKey is the NCBI API key for higher rate limits.
	APIKey string

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ICiteURL == "" {
		c.ICiteURL = DefaultICiteURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.ICiteURL = strings.TrimRight(c.ICiteURL, "/")
}

// Client implements papersources.Source for PubMed.
type Client struct {
	config  Config
	fetcher *papersources.Fetcher
}

// Compile-time check that Client implements Source.
var _ papersources.Source = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config, fetcher *papersources.Fetcher) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, fetcher: fetcher}
}

// Search queries PubMed for papers matching q.
// It performs a two-step search:
// 1. esearch.fcgi - retrieves PMIDs matching the query
// 2. efetch.fcgi - retrieves full article metadata for the PMIDs
// Citation counts are then looked up on iCite; a failed lookup leaves them
// unknown.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) ([]domain.ArticleRecord, error) {
	pmids, err := c.esearch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}
	if len(pmids) == 0 {
		return []domain.ArticleRecord{}, nil
	}

	set, err := c.efetch(ctx, q, pmids)
	if err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}

	records := make([]domain.ArticleRecord, 0, len(set.Articles))
	for i := range set.Articles {
		records = append(records, articleToRecord(&set.Articles[i]))
	}

	counts, err := c.citationCounts(ctx, q, pmids)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	for i := range records {
		if n, ok := counts[records[i].RawID()]; ok {
			records[i].CitationCount = domain.Citations(n)
		}
	}

	return papersources.Finalize(records, q.Limit), nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypePubMed.DisplayName()
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// BuildTerm maps a search mode onto an E-utilities term.
func BuildTerm(mode domain.SearchMode, text string) string {
	switch mode {
	case domain.SearchModeTitle:
		return fmt.Sprintf(`"%s"[Title]`, strings.ReplaceAll(text, `"`, ""))
	case domain.SearchModeAuthor:
		return text + "[Author]"
	default:
		return text
	}
}

// esearch performs a search query and returns matching PMIDs.
func (c *Client) esearch(ctx context.Context, q domain.SearchQuery) ([]string, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	params := u.Query()
	params.Set("db", "pubmed")
	params.Set("term", BuildTerm(q.Mode, q.Text))
	params.Set("retmode", "xml")
	params.Set("usehistory", "n")
	params.Set("retmax", strconv.Itoa(min(q.Limit, MaxResultsLimit)))

	if q.Filters.HasYearRange() {
		params.Set("datetype", "pdat") // Publication date
		params.Set("mindate", openMinDate)
		params.Set("maxdate", openMaxDate)
		if q.Filters.YearMin != 0 {
			params.Set("mindate", strconv.Itoa(q.Filters.YearMin))
		}
		if q.Filters.YearMax != 0 {
			params.Set("maxdate", strconv.Itoa(q.Filters.YearMax))
		}
	}

	if c.config.APIKey != "" {
		params.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = params.Encode()

	var result ESearchResult
	err = c.fetcher.Fetch(ctx, q, papersources.Request{
		Step: "esearch",
		Build: func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		},
		Decode: func(body []byte) error {
			var r ESearchResult
			if err := papersources.DecodeXML(body, &r); err != nil {
				return err
			}
			if r.Error != "" {
				return fmt.Errorf("esearch: %s: %w", r.Error, domain.ErrUnsupportedQuery)
			}
			result = r
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	// A phrase PubMed has never indexed yields no hits rather than an error.
	if result.ErrorList != nil && len(result.ErrorList.PhraseNotFound) > 0 && len(result.IDList.IDs) == 0 {
		return nil, nil
	}
	return result.IDList.IDs, nil
}

// efetch retrieves full article metadata for the given PMIDs.
func (c *Client) efetch(ctx context.Context, q domain.SearchQuery, pmids []string) (*PubmedArticleSet, error) {
	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	ids := strings.Join(pmids, ",")
	params := u.Query()
	params.Set("db", "pubmed")
	params.Set("id", ids)
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")
	if c.config.APIKey != "" {
		params.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = params.Encode()

	var set PubmedArticleSet
	err = c.fetcher.Fetch(ctx, q, papersources.Request{
		Step:  "efetch",
		Extra: ids,
		Build: func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		},
		Decode: func(body []byte) error {
			var s PubmedArticleSet
			if err := papersources.DecodeXML(body, &s); err != nil {
				return err
			}
			set = s
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// citationCounts looks up citation counts on iCite, keyed by PMID.
func (c *Client) citationCounts(ctx context.Context, q domain.SearchQuery, pmids []string) (map[string]int, error) {
	u, err := url.Parse(c.config.ICiteURL + "/pubs")
	if err != nil {
		return nil, fmt.Errorf("invalid iCite URL: %w", err)
	}
	ids := strings.Join(pmids, ",")
	params := u.Query()
	params.Set("pmids", ids)
	params.Set("fl", "pmid,citation_count")
	u.RawQuery = params.Encode()

	counts := make(map[string]int, len(pmids))
	err = c.fetcher.Fetch(ctx, q, papersources.Request{
		Step:  "icite",
		Extra: ids,
		Build: func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			return req, nil
		},
		Decode: func(body []byte) error {
			var resp ICiteResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return err
			}
			for _, pub := range resp.Data {
				if pub.CitationCount != nil {
					counts[strconv.Itoa(pub.PMID)] = *pub.CitationCount
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// articleToRecord converts a PubmedArticle to an article record.
func articleToRecord(article *PubmedArticle) domain.ArticleRecord {
	citation := article.MedlineCitation
	pmid := strings.TrimSpace(citation.PMID.Value)

	rec := domain.NewArticleRecord(domain.SourceTypePubMed, pmid)
	rec.Title = citation.Article.ArticleTitle.Value
	rec.DOI = extractDOI(citation.Article, article.PubmedData)
	rec.Abstract = extractAbstract(citation.Article.Abstract)
	rec.Authors = extractAuthors(citation.Article.AuthorList)
	rec.Year = extractYear(citation.Article)

	rec.Venue = citation.Article.Journal.Title
	if rec.Venue == "" {
		rec.Venue = citation.Article.Journal.ISOAbbreviation
	}
	if pmid != "" {
		rec.URL = ArticleURLPrefix + pmid + "/"
	}
	return rec
}

// extractDOI extracts the DOI from article metadata.
// It checks ELocationID first (more reliable), then ArticleIdList.
func extractDOI(article Article, pubmedData PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}
	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return aid.Value
		}
	}
	return ""
}

// extractYear prefers the journal issue date, which the pdat filter also
// uses, then the free-text MedlineDate, then the electronic date.
func extractYear(article Article) int {
	pubDate := article.Journal.JournalIssue.PubDate
	if y := domain.NormalizeYear(pubDate.Year); y != 0 {
		return y
	}
	// MedlineDate can be "2020 Jan-Feb", "2020 Spring", "2020-2021", etc.
	if y := domain.NormalizeYear(pubDate.MedlineDate); y != 0 {
		return y
	}
	for _, ad := range article.ArticleDate {
		if y := domain.NormalizeYear(ad.Year); y != 0 {
			return y
		}
	}
	return 0
}

// extractAbstract concatenates multiple abstract sections into a single string.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// extractAuthors builds display names, "ForeName LastName" or the
// collective name for group authors.
func extractAuthors(authorList *AuthorList) []string {
	if authorList == nil || len(authorList.Authors) == 0 {
		return nil
	}

	authors := make([]string, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}
		if a.CollectiveName != "" {
			authors = append(authors, a.CollectiveName)
			continue
		}
		name := strings.TrimSpace(a.ForeName + " " + a.LastName)
		if name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}
