// Package papersources defines the contract every academic provider adapter
// satisfies, and the shared plumbing adapters are built from: a paced,
// retrying HTTP client and a Fetcher that consults the response cache before
// touching the network.
//
// Example usage:
//
//	src := openalex.New(openalex.Config{...}, fetcher)
//	q, _ := domain.NewSearchQuery(domain.SearchModeKeyword, "CRISPR gene editing", 20, domain.Filters{})
//	records, err := src.Search(ctx, q)
package papersources

import (
	"context"

	"github.com/helixir/research-finder/internal/domain"
)

// Source is implemented once per provider.
type Source interface {
	// Search returns at most q.Limit normalized records matching q.
	// Zero matches is a success with an empty slice. Failures are returned
	// as errors the aggregator classifies into a domain.SourceError; an
	// adapter never panics its caller.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Go through a Fetcher so the cache and rate limiter are honored
	//   - Drop records that have neither a title nor a DOI
	Search(ctx context.Context, q domain.SearchQuery) ([]domain.ArticleRecord, error)

	// SourceType returns the provider identifier.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logs and summaries.
	Name() string

	// IsEnabled reports whether the source may be dispatched.
	IsEnabled() bool
}

// Finalize drops invalid records, cleans titles and authors, and caps the
// slice at limit. Adapters call it on their translated output.
func Finalize(records []domain.ArticleRecord, limit int) []domain.ArticleRecord {
	out := make([]domain.ArticleRecord, 0, len(records))
	for _, r := range records {
		r.Title = domain.CleanTitle(r.Title)
		r.DOI = domain.NormalizeDOI(r.DOI)
		r.Authors = domain.CleanAuthors(r.Authors)
		r.Abstract = domain.CleanText(r.Abstract)
		r.Venue = domain.CleanText(r.Venue)
		if !r.Valid() {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
