package domain

import "strings"

// ArticleRecord is the normalized unit every source produces.
//
// A record is identified by its DOI or, failing that, its normalized title.
// Title keeps its original casing for display; comparisons go through
// NormalizeTitle. A record produced by a single source has one entry in
// Sources; a merged record lists every contributing source in discovery order.
type ArticleRecord struct {
	DOI           string                `json:"doi,omitempty"`
	Title         string                `json:"title"`
	Authors       []string              `json:"authors,omitempty"`
	Year          int                   `json:"year,omitempty"`
	Venue         string                `json:"venue,omitempty"`
	Abstract      string                `json:"abstract,omitempty"`
	CitationCount *int                  `json:"citation_count,omitempty"`
	URL           string                `json:"url,omitempty"`
	License       string                `json:"license,omitempty"`
	Sources       []SourceType          `json:"sources"`
	RawIDs        map[SourceType]string `json:"raw_ids,omitempty"`
}

// NewArticleRecord starts a record attributed to a single source.
func NewArticleRecord(source SourceType, rawID string) ArticleRecord {
	rec := ArticleRecord{Sources: []SourceType{source}}
	if rawID != "" {
		rec.RawIDs = map[SourceType]string{source: rawID}
	}
	return rec
}

// Source returns the first contributing source.
func (r ArticleRecord) Source() SourceType {
	if len(r.Sources) == 0 {
		return ""
	}
	return r.Sources[0]
}

// RawID returns the identifier the first contributing source used.
func (r ArticleRecord) RawID() string {
	return r.RawIDs[r.Source()]
}

// Valid reports whether the record has a title or a DOI. Records failing
// this are discarded before aggregation.
func (r ArticleRecord) Valid() bool {
	return strings.TrimSpace(r.Title) != "" || strings.TrimSpace(r.DOI) != ""
}

// Completeness counts the populated optional fields. It is only used to
// pick merge winners.
func (r ArticleRecord) Completeness() int {
	n := 0
	if r.DOI != "" {
		n++
	}
	if len(r.Authors) > 0 {
		n++
	}
	if r.Year != 0 {
		n++
	}
	if r.Venue != "" {
		n++
	}
	if r.Abstract != "" {
		n++
	}
	if r.CitationCount != nil {
		n++
	}
	if r.URL != "" {
		n++
	}
	if r.License != "" {
		n++
	}
	return n
}

// NormalizedDOI returns the DOI in comparison form.
func (r ArticleRecord) NormalizedDOI() string {
	return NormalizeDOI(r.DOI)
}

// NormalizedTitle returns the title in comparison form.
func (r ArticleRecord) NormalizedTitle() string {
	return NormalizeTitle(r.Title)
}

// Citations returns a pointer to n, for populating CitationCount.
func Citations(n int) *int {
	return &n
}

// FirstAuthor returns the first listed author, or "".
func (r ArticleRecord) FirstAuthor() string {
	if len(r.Authors) == 0 {
		return ""
	}
	return r.Authors[0]
}
