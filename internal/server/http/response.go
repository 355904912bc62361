package httpserver

import (
	"github.com/helixir/research-finder/internal/aggregator"
	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/export"
)

// Response types for JSON serialization.

type searchResponse struct {
	RunID          string                    `json:"run_id"`
	Query          queryResponse             `json:"query"`
	CacheDirective string                    `json:"cache_directive"`
	CacheCleared   int                       `json:"cache_cleared"`
	Count          int                       `json:"count"`
	Records        []export.Entry            `json:"records"`
	Sources        []sourceOutcomeResponse   `json:"sources"`
	Failures       map[string]failureDetails `json:"failures"`
	Filtered       int                       `json:"filtered"`
	Merged         int                       `json:"merged"`
	Duration       string                    `json:"duration"`
}

type queryResponse struct {
	Mode    string         `json:"mode"`
	Text    string         `json:"text"`
	Limit   int            `json:"limit"`
	Filters domain.Filters `json:"filters"`
}

type sourceOutcomeResponse struct {
	Source   string `json:"source"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Records  int    `json:"records"`
	Reason   string `json:"reason,omitempty"`
	Duration string `json:"duration"`
}

// failureDetails carries only the classification. Underlying error text can
// contain provider URLs and is logged instead.
type failureDetails struct {
	Reason string `json:"reason"`
}

type sourceResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type listSourcesResponse struct {
	Sources []sourceResponse `json:"sources"`
}

type cacheStatsResponse struct {
	Entries int `json:"entries"`
	Expired int `json:"expired"`
}

type clearCacheResponse struct {
	Scope   string `json:"scope"`
	Removed int    `json:"removed"`
}

func toSearchResponse(res *aggregator.Result) searchResponse {
	records := make([]export.Entry, len(res.Records))
	for i, r := range res.Records {
		records[i] = export.NewEntry(r)
	}

	sources := make([]sourceOutcomeResponse, len(res.Sources))
	for i, s := range res.Sources {
		sources[i] = sourceOutcomeResponse{
			Source:   string(s.Source),
			Name:     s.Source.DisplayName(),
			Status:   s.Status,
			Records:  s.Records,
			Reason:   string(s.Reason),
			Duration: s.Duration.String(),
		}
	}

	failures := make(map[string]failureDetails, len(res.Failures))
	for st, se := range res.Failures {
		failures[string(st)] = failureDetails{Reason: string(se.Reason)}
	}

	return searchResponse{
		RunID: res.RunID,
		Query: queryResponse{
			Mode:    string(res.Query.Mode),
			Text:    res.Query.Text,
			Limit:   res.Query.Limit,
			Filters: res.Query.Filters,
		},
		CacheDirective: string(res.CacheDirective),
		CacheCleared:   res.CacheCleared,
		Count:          len(records),
		Records:        records,
		Sources:        sources,
		Failures:       failures,
		Filtered:       res.Filtered,
		Merged:         res.Merged,
		Duration:       res.Duration.String(),
	}
}

func toCacheStatsResponse(st cache.Stats) cacheStatsResponse {
	return cacheStatsResponse{Entries: st.Entries, Expired: st.Expired}
}
