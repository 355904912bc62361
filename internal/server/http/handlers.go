package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/helixir/research-finder/internal/aggregator"
	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/export"
	"github.com/helixir/research-finder/internal/observability"
)

// search handles GET /api/v1/search.
//
// Query parameters: q (required), mode, limit, sources (comma separated or
// repeated), year_min, year_max, min_citations, cache (none, expired, all)
// and format. Without format the run is returned as JSON; with one the
// records are returned as a download in that format.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, s.logger)
	params := r.URL.Query()

	req, err := parseSearchRequest(params)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var format export.Format
	if f := params.Get("format"); f != "" {
		if format, err = export.ParseFormat(f); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	res, err := s.runner.Run(ctx, req)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidInput) && !errors.Is(err, domain.ErrNoSources) {
			logger.Error().Err(err).Msg("search failed")
		}
		writeDomainError(w, err)
		return
	}

	if format == "" {
		writeJSON(w, http.StatusOK, toSearchResponse(res))
		return
	}

	// Render fully before writing so an encoding failure can still be
	// reported with a proper status.
	var buf bytes.Buffer
	if err := export.Write(&buf, res.Records, format); err != nil {
		logger.Error().Err(err).Str("format", string(format)).Msg("failed to render results")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	filename := fmt.Sprintf("results_%s.%s", res.RunID, format.Extension())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Run-ID", res.RunID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// parseSearchRequest builds an aggregation request from query parameters.
func parseSearchRequest(params map[string][]string) (aggregator.Request, error) {
	get := func(key string) string {
		if v := params[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	text := get("q")
	if text == "" {
		return aggregator.Request{}, domain.NewValidationError("q", "query text is required")
	}

	mode, err := domain.ParseSearchMode(get("mode"))
	if err != nil {
		return aggregator.Request{}, err
	}

	var ints [4]int
	for i, key := range []string{"limit", "year_min", "year_max", "min_citations"} {
		v := get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return aggregator.Request{}, domain.NewValidationError(key, "must be an integer")
		}
		ints[i] = n
	}
	if ints[0] < 0 {
		return aggregator.Request{}, domain.NewValidationError("limit", "must not be negative")
	}

	q, err := domain.NewSearchQuery(mode, text, ints[0], domain.Filters{
		YearMin:      ints[1],
		YearMax:      ints[2],
		MinCitations: ints[3],
	})
	if err != nil {
		return aggregator.Request{}, err
	}

	var sources []domain.SourceType
	for _, raw := range params["sources"] {
		for _, name := range strings.Split(raw, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			st, err := domain.ParseSourceType(name)
			if err != nil {
				return aggregator.Request{}, err
			}
			sources = append(sources, st)
		}
	}

	directive, err := domain.ParseCacheDirective(get("cache"))
	if err != nil {
		return aggregator.Request{}, err
	}

	return aggregator.Request{Query: q, Sources: sources, CacheDirective: directive}, nil
}

// listSources handles GET /api/v1/sources.
func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	registered := s.sources.Sources()
	resp := listSourcesResponse{Sources: make([]sourceResponse, 0, len(registered))}
	for _, src := range registered {
		resp.Sources = append(resp.Sources, sourceResponse{
			ID:      string(src.SourceType()),
			Name:    src.Name(),
			Enabled: src.IsEnabled(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// cacheStats handles GET /api/v1/cache.
func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache is disabled")
		return
	}
	st, err := s.cache.Stats(r.Context())
	if err != nil {
		log := observability.LoggerFromContext(r.Context(), s.logger)
		log.Error().Err(err).Msg("failed to read cache stats")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toCacheStatsResponse(st))
}

// clearCache handles DELETE /api/v1/cache?scope=expired|all. The scope
// defaults to expired.
func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache is disabled")
		return
	}

	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "expired"
	}
	directive, err := domain.ParseCacheDirective(scope)
	if err != nil || directive == domain.CacheDirectiveNone {
		writeError(w, http.StatusBadRequest, "scope must be expired or all")
		return
	}

	logger := observability.LoggerFromContext(r.Context(), s.logger)
	removed, err := cache.Clear(r.Context(), s.cache, directive)
	if err != nil {
		logger.Error().Err(err).Str("directive", string(directive)).Msg("failed to clear cache")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	logger.Info().Str("directive", string(directive)).Int("removed", removed).Msg("cache cleared")

	writeJSON(w, http.StatusOK, clearCacheResponse{Scope: string(directive), Removed: removed})
}

// writeDomainError maps domain errors to HTTP status codes. Messages of
// unclassified errors are never echoed.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrNoSources):
		writeError(w, http.StatusBadRequest, "no sources are enabled")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusServiceUnavailable, "search cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
