// Package domain provides the record model, query model and error taxonomy
// shared by the research finder's sources, cache and aggregator.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// SourceType identifies an academic data provider.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeCrossRef        SourceType = "crossref"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypeGoogleScholar   SourceType = "google_scholar"
)

// canonicalOrder fixes dispatch and discovery order across runs.
var canonicalOrder = []SourceType{
	SourceTypeSemanticScholar,
	SourceTypeArXiv,
	SourceTypePubMed,
	SourceTypeCrossRef,
	SourceTypeOpenAlex,
	SourceTypeGoogleScholar,
}

var displayNames = map[SourceType]string{
	SourceTypeSemanticScholar: "Semantic Scholar",
	SourceTypeArXiv:           "arXiv",
	SourceTypePubMed:          "PubMed",
	SourceTypeCrossRef:        "CrossRef",
	SourceTypeOpenAlex:        "OpenAlex",
	SourceTypeGoogleScholar:   "Google Scholar",
}

// sourceAliases accepts the spellings users tend to type on the command line.
var sourceAliases = map[string]SourceType{
	"semantic_scholar": SourceTypeSemanticScholar,
	"semanticscholar":  SourceTypeSemanticScholar,
	"s2":               SourceTypeSemanticScholar,
	"arxiv":            SourceTypeArXiv,
	"pubmed":           SourceTypePubMed,
	"crossref":         SourceTypeCrossRef,
	"openalex":         SourceTypeOpenAlex,
	"google_scholar":   SourceTypeGoogleScholar,
	"googlescholar":    SourceTypeGoogleScholar,
	"scholar":          SourceTypeGoogleScholar,
}

// AllSourceTypes returns every known source in canonical order.
func AllSourceTypes() []SourceType {
	out := make([]SourceType, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

// ParseSourceType resolves a user-supplied source name.
func ParseSourceType(s string) (SourceType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if st, ok := sourceAliases[key]; ok {
		return st, nil
	}
	return "", NewValidationError("source", fmt.Sprintf("unknown source %q", s))
}

// IsValid reports whether s is one of the known sources.
func (s SourceType) IsValid() bool {
	_, ok := displayNames[s]
	return ok
}

// DisplayName returns the human-readable provider name.
func (s SourceType) DisplayName() string {
	if name, ok := displayNames[s]; ok {
		return name
	}
	return string(s)
}

// Rank returns the position of s in the canonical order, or len(order) for
// unknown sources so they sort last.
func (s SourceType) Rank() int {
	for i, st := range canonicalOrder {
		if st == s {
			return i
		}
	}
	return len(canonicalOrder)
}

// SortSourceTypes sorts sources into canonical order and removes duplicates.
func SortSourceTypes(sources []SourceType) []SourceType {
	seen := make(map[SourceType]bool, len(sources))
	out := make([]SourceType, 0, len(sources))
	for _, s := range sources {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank() < out[j].Rank()
	})
	return out
}

// CacheDirective is applied to the cache store once before a run dispatches.
type CacheDirective string

const (
	CacheDirectiveNone         CacheDirective = "none"
	CacheDirectiveClearExpired CacheDirective = "clear_expired"
	CacheDirectiveClearAll     CacheDirective = "clear_all"
)

// ParseCacheDirective parses a directive name. The empty string means none.
func ParseCacheDirective(s string) (CacheDirective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CacheDirectiveNone, nil
	case "clear_expired", "clear-expired", "expired":
		return CacheDirectiveClearExpired, nil
	case "clear_all", "clear-all", "all":
		return CacheDirectiveClearAll, nil
	default:
		return "", NewValidationError("cache_directive", fmt.Sprintf("unknown cache directive %q", s))
	}
}
