package aggregator

import "github.com/helixir/research-finder/internal/domain"

// ApplyFilters drops records that are known to fall outside f. A record
// with no year passes the year range and one with no citation count passes
// the citation minimum. It returns the kept records, in input order, and the
// number dropped.
func ApplyFilters(records []domain.ArticleRecord, f domain.Filters) ([]domain.ArticleRecord, int) {
	if f.IsZero() {
		return records, 0
	}

	kept := make([]domain.ArticleRecord, 0, len(records))
	for _, r := range records {
		if !passesYear(r, f) || !passesCitations(r, f) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(records) - len(kept)
}

func passesYear(r domain.ArticleRecord, f domain.Filters) bool {
	if !f.HasYearRange() || r.Year == 0 {
		return true
	}
	if f.YearMin != 0 && r.Year < f.YearMin {
		return false
	}
	if f.YearMax != 0 && r.Year > f.YearMax {
		return false
	}
	return true
}

func passesCitations(r domain.ArticleRecord, f domain.Filters) bool {
	if f.MinCitations <= 0 || r.CitationCount == nil {
		return true
	}
	return *r.CitationCount >= f.MinCitations
}
