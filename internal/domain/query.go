package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// SearchMode selects which part of a record the query text should match.
type SearchMode string

const (
	SearchModeKeyword SearchMode = "keyword"
	SearchModeTitle   SearchMode = "title"
	SearchModeAuthor  SearchMode = "author"
)

// ParseSearchMode parses a mode name. The empty string means keyword.
func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keyword", "keywords":
		return SearchModeKeyword, nil
	case "title":
		return SearchModeTitle, nil
	case "author":
		return SearchModeAuthor, nil
	default:
		return "", NewValidationError("mode", fmt.Sprintf("unknown search mode %q", s))
	}
}

// DefaultResultLimit is the per-source cap used when none is given.
const DefaultResultLimit = 10

// MaxResultLimit bounds the per-source cap.
const MaxResultLimit = 1000

// Filters are optional post-filters. Zero values mean "not set".
type Filters struct {
	YearMin      int `json:"year_min,omitempty" validate:"omitempty,gte=1000,lte=9999"`
	YearMax      int `json:"year_max,omitempty" validate:"omitempty,gte=1000,lte=9999"`
	MinCitations int `json:"min_citations,omitempty" validate:"gte=0"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.YearMin == 0 && f.YearMax == 0 && f.MinCitations == 0
}

// HasYearRange reports whether either year bound is set.
func (f Filters) HasYearRange() bool {
	return f.YearMin != 0 || f.YearMax != 0
}

// SearchQuery is built once per run and shared read-only by every source.
type SearchQuery struct {
	Mode    SearchMode `json:"mode" validate:"required,oneof=keyword title author"`
	Text    string     `json:"text" validate:"required,max=1000"`
	Limit   int        `json:"limit" validate:"gte=1,lte=1000"`
	Filters Filters    `json:"filters"`
}

// NewSearchQuery builds a query with defaults applied and validates it.
func NewSearchQuery(mode SearchMode, text string, limit int, filters Filters) (SearchQuery, error) {
	if mode == "" {
		mode = SearchModeKeyword
	}
	if limit == 0 {
		limit = DefaultResultLimit
	}
	q := SearchQuery{
		Mode:    mode,
		Text:    strings.TrimSpace(text),
		Limit:   limit,
		Filters: filters,
	}
	if err := q.Validate(); err != nil {
		return SearchQuery{}, err
	}
	return q, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func queryValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the query shape. It returns a *ValidationError for the
// first problem found.
func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return NewValidationError("text", "query text must not be empty")
	}
	if err := queryValidator().Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewValidationError(fieldName(fe.Namespace()), fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()))
		}
		return NewValidationError("query", err.Error())
	}
	f := q.Filters
	if f.YearMin != 0 && f.YearMax != 0 && f.YearMin > f.YearMax {
		return NewValidationError("filters.year", fmt.Sprintf("year_min %d is after year_max %d", f.YearMin, f.YearMax))
	}
	return nil
}

// NormalizedText is the text form used for cache keys.
func (q SearchQuery) NormalizedText() string {
	return strings.Join(strings.Fields(strings.ToLower(q.Text)), " ")
}

// fieldName turns "SearchQuery.Filters.YearMin" into "filters.yearmin".
func fieldName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}
