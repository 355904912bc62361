package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-finder/internal/domain"
)

func record(source domain.SourceType, id, doi, title string) domain.ArticleRecord {
	r := domain.NewArticleRecord(source, id)
	r.DOI = doi
	r.Title = title
	return r
}

func TestDeduplicate(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		out := Deduplicate(nil)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("equal DOI merges regardless of title", func(t *testing.T) {
		out := Deduplicate([]domain.ArticleRecord{
			record(domain.SourceTypeSemanticScholar, "s2-1", "10.1/ABC", "Deep Learning"),
			record(domain.SourceTypePubMed, "123", "https://doi.org/10.1/abc", "A Completely Different Title"),
		})
		require.Len(t, out, 1)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeSemanticScholar, domain.SourceTypePubMed}, out[0].Sources)
		assert.Equal(t, "10.1/abc", out[0].DOI)
		assert.Equal(t, "s2-1", out[0].RawIDs[domain.SourceTypeSemanticScholar])
		assert.Equal(t, "123", out[0].RawIDs[domain.SourceTypePubMed])
	})

	t.Run("equal normalized title without DOI merges", func(t *testing.T) {
		out := Deduplicate([]domain.ArticleRecord{
			record(domain.SourceTypeArXiv, "1", "", "Attention Is All You Need"),
			record(domain.SourceTypeGoogleScholar, "2", "", "  attention is all you need. "),
		})
		require.Len(t, out, 1)
		assert.Equal(t, "Attention Is All You Need", out[0].Title)
	})

	t.Run("accents keep titles apart", func(t *testing.T) {
		out := Deduplicate([]domain.ArticleRecord{
			record(domain.SourceTypeCrossRef, "1", "", "Cáncer del año"),
			record(domain.SourceTypeOpenAlex, "2", "", "Cancer del ano"),
		})
		require.Len(t, out, 2)
		assert.Equal(t, "Cáncer del año", out[0].Title)
		assert.Equal(t, "Cancer del ano", out[1].Title)
	})

	t.Run("different DOIs with equal title still merge by title", func(t *testing.T) {
		out := Deduplicate([]domain.ArticleRecord{
			record(domain.SourceTypeArXiv, "1", "10.48550/arXiv.1706.03762", "Attention Is All You Need"),
			record(domain.SourceTypeCrossRef, "2", "10.5555/3295222.3295349", "Attention is all you need"),
		})
		require.Len(t, out, 1)
		assert.Equal(t, "10.48550/arxiv.1706.03762", out[0].DOI)
	})

	t.Run("transitive DOI then title match", func(t *testing.T) {
		out := Deduplicate([]domain.ArticleRecord{
			record(domain.SourceTypeSemanticScholar, "a", "10.1/x", "Title A"),
			record(domain.SourceTypeOpenAlex, "b", "10.1/X", "Title B"),
			record(domain.SourceTypeGoogleScholar, "c", "", "title b"),
			record(domain.SourceTypeCrossRef, "d", "10.2/unrelated", "Unrelated"),
		})
		require.Len(t, out, 2)
		assert.Equal(t, []domain.SourceType{
			domain.SourceTypeSemanticScholar, domain.SourceTypeOpenAlex, domain.SourceTypeGoogleScholar,
		}, out[0].Sources)
		assert.Equal(t, "Unrelated", out[1].Title)
	})

	t.Run("late bridge joins two earlier classes", func(t *testing.T) {
		out := Deduplicate([]domain.ArticleRecord{
			record(domain.SourceTypeSemanticScholar, "a", "10.1/x", "Alpha"),
			record(domain.SourceTypeArXiv, "b", "", "Beta"),
			record(domain.SourceTypePubMed, "c", "10.1/x", "Beta"),
		})
		require.Len(t, out, 1)
		assert.ElementsMatch(t, []domain.SourceType{
			domain.SourceTypeSemanticScholar, domain.SourceTypeArXiv, domain.SourceTypePubMed,
		}, out[0].Sources)
	})

	t.Run("records with blank identity never match each other", func(t *testing.T) {
		a := record(domain.SourceTypeArXiv, "1", "", "")
		a.Abstract = "one"
		b := record(domain.SourceTypeArXiv, "2", "", "")
		b.Abstract = "two"
		out := Deduplicate([]domain.ArticleRecord{a, b})
		assert.Len(t, out, 2)
	})

	t.Run("output follows discovery order of classes", func(t *testing.T) {
		var in []domain.ArticleRecord
		for i := 0; i < 5; i++ {
			in = append(in, record(domain.SourceTypeOpenAlex, fmt.Sprint(i), "", fmt.Sprintf("Paper %d", i)))
		}
		in = append(in, record(domain.SourceTypeCrossRef, "dup", "", "paper 2"))

		out := Deduplicate(in)
		require.Len(t, out, 5)
		for i, r := range out {
			assert.Equal(t, fmt.Sprintf("Paper %d", i), r.Title)
		}
		assert.Len(t, out[2].Sources, 2)
	})
}

func TestMerge(t *testing.T) {
	t.Run("healthcare example", func(t *testing.T) {
		s2 := record(domain.SourceTypeSemanticScholar, "s2", "10.1/ABC", "Machine learning in healthcare")
		s2.CitationCount = domain.Citations(50)
		s2.Year = 2020
		s2.Authors = []string{"A. Smith"}

		pm := record(domain.SourceTypePubMed, "999", "10.1/abc", "Machine Learning in Healthcare")
		pm.Abstract = "A much longer abstract about clinical ML."
		pm.Year = 2019

		other := record(domain.SourceTypeOpenAlex, "W1", "10.9/zzz", "Unrelated work")

		out := Deduplicate([]domain.ArticleRecord{s2, pm, other})
		require.Len(t, out, 2)

		merged := out[0]
		require.NotNil(t, merged.CitationCount)
		assert.Equal(t, 50, *merged.CitationCount)
		assert.Equal(t, pm.Abstract, merged.Abstract)
		assert.Equal(t, 2020, merged.Year, "higher completeness wins")
		assert.Equal(t, "Machine learning in healthcare", merged.Title)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeSemanticScholar, domain.SourceTypePubMed}, merged.Sources)
	})

	t.Run("completeness tie goes to the earliest member", func(t *testing.T) {
		first := record(domain.SourceTypeCrossRef, "1", "10.1/t", "Tie")
		first.Venue = "Nature"
		second := record(domain.SourceTypeOpenAlex, "2", "10.1/t", "Tie")
		second.Venue = "Science"

		merged := Merge([]domain.ArticleRecord{first, second})
		assert.Equal(t, "Nature", merged.Venue)
	})

	t.Run("each field takes the best available value", func(t *testing.T) {
		sparse := record(domain.SourceTypeGoogleScholar, "g", "", "Field Wise")
		sparse.URL = "https://scholar.example/x"

		rich := record(domain.SourceTypeCrossRef, "10.1/fw", "10.1/fw", "Field wise")
		rich.Authors = []string{"Ada Lovelace"}
		rich.Year = 2001
		rich.Venue = "Journal"

		merged := Merge([]domain.ArticleRecord{sparse, rich})
		assert.Equal(t, "Field wise", merged.Title)
		assert.Equal(t, "10.1/fw", merged.DOI)
		assert.Equal(t, "https://scholar.example/x", merged.URL, "only the sparse member has a URL")
		assert.Equal(t, []string{"Ada Lovelace"}, merged.Authors)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeGoogleScholar, domain.SourceTypeCrossRef}, merged.Sources)
	})

	t.Run("merged record does not alias its inputs", func(t *testing.T) {
		a := record(domain.SourceTypeArXiv, "1", "10.1/a", "Alias")
		a.Authors = []string{"X"}
		a.CitationCount = domain.Citations(3)

		merged := Merge([]domain.ArticleRecord{a})
		merged.Authors[0] = "changed"
		*merged.CitationCount = 99
		merged.RawIDs[domain.SourceTypeArXiv] = "changed"

		assert.Equal(t, "X", a.Authors[0])
		assert.Equal(t, 3, *a.CitationCount)
		assert.Equal(t, "1", a.RawIDs[domain.SourceTypeArXiv])
	})
}

func TestDeduplicate_Idempotent(t *testing.T) {
	in := []domain.ArticleRecord{
		record(domain.SourceTypeSemanticScholar, "a", "10.1/x", "One"),
		record(domain.SourceTypePubMed, "b", "10.1/X", "One (again)"),
		record(domain.SourceTypeArXiv, "c", "", "Two"),
		record(domain.SourceTypeCrossRef, "d", "", "two"),
		record(domain.SourceTypeOpenAlex, "e", "10.3/z", "Three"),
	}

	once := Deduplicate(in)
	twice := Deduplicate(once)
	assert.Equal(t, once, twice)

	again := Deduplicate(in)
	assert.Equal(t, once, again, "same input, same output")
}
