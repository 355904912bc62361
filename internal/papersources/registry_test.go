package papersources

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-finder/internal/domain"
)

// mockSource is a mock implementation of Source for testing.
type mockSource struct {
	sourceType domain.SourceType
	enabled    bool
	searchFunc func(ctx context.Context, q domain.SearchQuery) ([]domain.ArticleRecord, error)
}

func (m *mockSource) Search(ctx context.Context, q domain.SearchQuery) ([]domain.ArticleRecord, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, q)
	}
	return nil, nil
}

func (m *mockSource) SourceType() domain.SourceType { return m.sourceType }
func (m *mockSource) Name() string                  { return m.sourceType.DisplayName() }
func (m *mockSource) IsEnabled() bool               { return m.enabled }

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		src := &mockSource{sourceType: domain.SourceTypePubMed, enabled: true}
		r.Register(src)

		got, ok := r.Get(domain.SourceTypePubMed)
		require.True(t, ok)
		assert.Same(t, src, got)

		_, ok = r.Get(domain.SourceTypeArXiv)
		assert.False(t, ok)
	})

	t.Run("register replaces same type", func(t *testing.T) {
		r := NewRegistry()
		first := &mockSource{sourceType: domain.SourceTypeArXiv}
		second := &mockSource{sourceType: domain.SourceTypeArXiv}
		r.Register(first)
		r.Register(second)

		got, _ := r.Get(domain.SourceTypeArXiv)
		assert.Same(t, second, got)
		assert.Len(t, r.Sources(), 1)
	})

	t.Run("listings follow canonical order", func(t *testing.T) {
		r := NewRegistry()
		for _, st := range []domain.SourceType{
			domain.SourceTypeGoogleScholar,
			domain.SourceTypePubMed,
			domain.SourceTypeSemanticScholar,
			domain.SourceTypeOpenAlex,
		} {
			r.Register(&mockSource{sourceType: st, enabled: st != domain.SourceTypeGoogleScholar})
		}

		assert.Equal(t, []domain.SourceType{
			domain.SourceTypeSemanticScholar,
			domain.SourceTypePubMed,
			domain.SourceTypeOpenAlex,
			domain.SourceTypeGoogleScholar,
		}, r.Types())
		assert.Equal(t, []domain.SourceType{
			domain.SourceTypeSemanticScholar,
			domain.SourceTypePubMed,
			domain.SourceTypeOpenAlex,
		}, r.EnabledTypes())
	})

	t.Run("concurrent registration", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for _, st := range domain.AllSourceTypes() {
			wg.Add(1)
			go func(st domain.SourceType) {
				defer wg.Done()
				r.Register(&mockSource{sourceType: st})
				_ = r.Sources()
			}(st)
		}
		wg.Wait()
		assert.Equal(t, domain.AllSourceTypes(), r.Types())
	})
}

func TestFinalize(t *testing.T) {
	records := []domain.ArticleRecord{
		{Title: "  <i>Deep</i>   learning  ", DOI: "https://doi.org/10.1/ABC", Authors: []string{"A. Smith", "a. smith", ""}},
		{Title: "", DOI: ""},
		{Title: "", DOI: "not-a-doi"},
		{Title: "Second", Abstract: "  spaced\n out  "},
		{Title: "Third"},
	}

	out := Finalize(records, 2)
	require.Len(t, out, 2)

	assert.Equal(t, "Deep learning", out[0].Title)
	assert.Equal(t, "10.1/abc", out[0].DOI)
	assert.Equal(t, []string{"A. Smith"}, out[0].Authors)
	assert.Equal(t, "Second", out[1].Title)
	assert.Equal(t, "spaced out", out[1].Abstract)

	t.Run("zero limit keeps everything valid", func(t *testing.T) {
		assert.Len(t, Finalize(records, 0), 3)
	})
}
