// Package dedup merges records that describe the same article.
//
// Two records match when their normalized DOIs are equal or their normalized
// titles are equal. Matching is transitive: records are grouped into
// equivalence classes and each class collapses into one merged record.
package dedup

import (
	"sort"

	"github.com/helixir/research-finder/internal/domain"
)

// Deduplicate collapses duplicate records. The input order is the discovery
// order; the output lists one record per class, ordered by the discovery
// position of the class's first member. The result depends only on the
// input slice, so identical input yields identical output.
func Deduplicate(records []domain.ArticleRecord) []domain.ArticleRecord {
	if len(records) == 0 {
		return []domain.ArticleRecord{}
	}

	uf := newUnionFind(len(records))
	byDOI := make(map[string]int)
	byTitle := make(map[string]int)

	for i := range records {
		if doi := records[i].NormalizedDOI(); doi != "" {
			if j, ok := byDOI[doi]; ok {
				uf.union(j, i)
			} else {
				byDOI[doi] = i
			}
		}
		if title := records[i].NormalizedTitle(); title != "" {
			if j, ok := byTitle[title]; ok {
				uf.union(j, i)
			} else {
				byTitle[title] = i
			}
		}
	}

	// Members are appended in index order, so every class is already in
	// discovery order and classes are keyed by their first member.
	classes := make(map[int][]int)
	var roots []int
	for i := range records {
		root := uf.find(i)
		if _, ok := classes[root]; !ok {
			roots = append(roots, root)
		}
		classes[root] = append(classes[root], i)
	}

	out := make([]domain.ArticleRecord, 0, len(roots))
	for _, root := range roots {
		members := make([]domain.ArticleRecord, 0, len(classes[root]))
		for _, i := range classes[root] {
			members = append(members, records[i])
		}
		out = append(out, Merge(members))
	}
	return out
}

// Merge builds one record from members given in discovery order. Each field
// takes the first non-empty value when members are ranked by completeness,
// highest first, ties keeping discovery order. Sources and raw ids are the
// union over all members.
func Merge(members []domain.ArticleRecord) domain.ArticleRecord {
	switch len(members) {
	case 0:
		return domain.ArticleRecord{}
	case 1:
		return clone(members[0])
	}

	ranked := make([]domain.ArticleRecord, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Completeness() > ranked[j].Completeness()
	})

	var merged domain.ArticleRecord
	for _, r := range ranked {
		if merged.Title == "" {
			merged.Title = r.Title
		}
		if merged.DOI == "" && r.NormalizedDOI() != "" {
			merged.DOI = r.NormalizedDOI()
		}
		if len(merged.Authors) == 0 && len(r.Authors) > 0 {
			merged.Authors = append([]string(nil), r.Authors...)
		}
		if merged.Year == 0 {
			merged.Year = r.Year
		}
		if merged.Venue == "" {
			merged.Venue = r.Venue
		}
		if merged.Abstract == "" {
			merged.Abstract = r.Abstract
		}
		if merged.CitationCount == nil && r.CitationCount != nil {
			merged.CitationCount = domain.Citations(*r.CitationCount)
		}
		if merged.URL == "" {
			merged.URL = r.URL
		}
		if merged.License == "" {
			merged.License = r.License
		}
	}

	seen := make(map[domain.SourceType]bool)
	for _, r := range members {
		for _, s := range r.Sources {
			if !seen[s] {
				seen[s] = true
				merged.Sources = append(merged.Sources, s)
			}
		}
		for s, id := range r.RawIDs {
			if merged.RawIDs == nil {
				merged.RawIDs = make(map[domain.SourceType]string)
			}
			if _, ok := merged.RawIDs[s]; !ok {
				merged.RawIDs[s] = id
			}
		}
	}
	return merged
}

func clone(r domain.ArticleRecord) domain.ArticleRecord {
	out := r
	out.Authors = append([]string(nil), r.Authors...)
	out.Sources = append([]domain.SourceType(nil), r.Sources...)
	if r.CitationCount != nil {
		out.CitationCount = domain.Citations(*r.CitationCount)
	}
	if r.RawIDs != nil {
		out.RawIDs = make(map[domain.SourceType]string, len(r.RawIDs))
		for k, v := range r.RawIDs {
			out.RawIDs[k] = v
		}
	}
	return out
}

// unionFind is a disjoint-set forest. The smaller index always becomes the
// root, so a class's root is its earliest member.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
