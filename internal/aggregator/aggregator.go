// Package aggregator runs one query against several sources and folds the
// answers into a single deduplicated result.
//
// A run applies the cache directive, dispatches every selected source
// concurrently under its own timeout, collects a failure map for the sources
// that did not answer, filters the remaining records and deduplicates them.
// Source failures never fail the run; only an invalid request is rejected, and
// a run cancelled by its caller returns domain.ErrCancelled.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/dedup"
	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/observability"
	"github.com/helixir/research-finder/internal/papersources"
)

const (
	// DefaultTaskTimeout bounds a single source search.
	DefaultTaskTimeout = 60 * time.Second

	// DefaultMaxConcurrency is enough to run every known source at once.
	DefaultMaxConcurrency = 6
)

// SourceLookup resolves source identifiers to adapters.
// *papersources.Registry satisfies it.
type SourceLookup interface {
	Get(domain.SourceType) (papersources.Source, bool)
	EnabledTypes() []domain.SourceType
}

// Config tunes dispatch.
type Config struct {
	// TaskTimeout bounds each source search. A search that outlives it is
	// recorded as a timeout failure.
	TaskTimeout time.Duration

	// MaxConcurrency bounds how many sources are searched at once.
	MaxConcurrency int
}

// Request is one aggregation run.
type Request struct {
	// Query is shared read-only by every source. Its Filters are applied
	// to the combined records after collection.
	Query domain.SearchQuery

	// Sources selects the providers. Empty means every enabled source.
	Sources []domain.SourceType

	// CacheDirective is applied once before dispatch.
	CacheDirective domain.CacheDirective
}

// Aggregator coordinates runs. It is safe for concurrent use; the cache
// store and the sources' rate limiters are shared between runs.
type Aggregator struct {
	sources SourceLookup
	cache   cache.Store
	config  Config
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// New creates an Aggregator. store may be nil when caching is disabled, and
// metrics may be nil.
func New(sources SourceLookup, store cache.Store, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Aggregator {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Aggregator{
		sources: sources,
		cache:   store,
		config:  cfg,
		metrics: metrics,
		logger:  logger.With().Str("component", "aggregator").Logger(),
	}
}

// Run executes req. The returned error is non-nil only when the request is
// invalid (a *domain.ValidationError) or ctx is cancelled before the run
// completes (wrapping domain.ErrCancelled). A run where every source fails
// returns a Result with no records and a failure for each source.
func (a *Aggregator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Query.Validate(); err != nil {
		return nil, err
	}
	selected, err := a.resolve(req.Sources)
	if err != nil {
		return nil, err
	}
	directive := req.CacheDirective
	if directive == "" {
		directive = domain.CacheDirectiveNone
	}
	if _, err := domain.ParseCacheDirective(string(directive)); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx = observability.WithRunID(ctx, runID)
	logger := observability.WithRunContext(a.logger, observability.RequestIDFromContext(ctx), runID)
	ctx = observability.WithLogger(ctx, logger)

	start := time.Now()
	result := &Result{
		RunID:          runID,
		Query:          req.Query,
		CacheDirective: directive,
		Failures:       make(map[domain.SourceType]*domain.SourceError),
	}

	logger.Info().
		Str("query", req.Query.Text).
		Str("mode", string(req.Query.Mode)).
		Int("limit", req.Query.Limit).
		Strs("sources", sourceNames(selected)).
		Msg("starting aggregation run")

	result.CacheCleared = a.applyDirective(ctx, directive, logger)
	a.metrics.RecordRunStarted()

	outcomes := a.dispatch(ctx, req.Query, selected, logger)

	if ctxErr := ctx.Err(); ctxErr != nil {
		a.metrics.RecordRunCancelled(time.Since(start).Seconds())
		logger.Warn().Err(ctxErr).Msg("aggregation run cancelled")
		return nil, fmt.Errorf("aggregation run %s: %w: %w", runID, domain.ErrCancelled, ctxErr)
	}

	var candidates []domain.ArticleRecord
	for _, o := range outcomes {
		result.Sources = append(result.Sources, o.summary())
		if o.err != nil {
			result.Failures[o.source] = o.err
			continue
		}
		candidates = append(candidates, o.records...)
	}

	kept, dropped := ApplyFilters(candidates, req.Query.Filters)
	result.Filtered = dropped
	a.metrics.RecordFiltered(dropped)

	result.Records = dedup.Deduplicate(kept)
	result.Merged = len(kept) - len(result.Records)
	a.metrics.RecordDuplicatesMerged(result.Merged)

	result.Duration = time.Since(start)
	a.metrics.RecordRunCompleted(result.Duration.Seconds(), len(result.Records))

	logger.Info().
		Int("candidates", len(candidates)).
		Int("filtered", result.Filtered).
		Int("merged", result.Merged).
		Int("records", len(result.Records)).
		Int("failed_sources", len(result.Failures)).
		Dur("duration", result.Duration).
		Msg("aggregation run completed")

	return result, nil
}

// resolve validates the selection and returns it in canonical order.
func (a *Aggregator) resolve(requested []domain.SourceType) ([]domain.SourceType, error) {
	if len(requested) == 0 {
		requested = a.sources.EnabledTypes()
		if len(requested) == 0 {
			return nil, fmt.Errorf("%w: no sources are enabled", domain.ErrNoSources)
		}
	}

	selected := domain.SortSourceTypes(requested)
	for _, st := range selected {
		if !st.IsValid() {
			return nil, domain.NewValidationError("sources", fmt.Sprintf("unknown source %q", st))
		}
		src, ok := a.sources.Get(st)
		if !ok {
			return nil, domain.NewValidationError("sources", fmt.Sprintf("source %q is not configured", st))
		}
		if !src.IsEnabled() {
			return nil, domain.NewValidationError("sources", fmt.Sprintf("source %q is disabled", st))
		}
	}
	return selected, nil
}

func (a *Aggregator) applyDirective(ctx context.Context, directive domain.CacheDirective, logger zerolog.Logger) int {
	if directive == domain.CacheDirectiveNone || a.cache == nil {
		return 0
	}
	removed, err := cache.Clear(ctx, a.cache, directive)
	if err != nil {
		logger.Warn().Err(err).Str("directive", string(directive)).Msg("cache directive failed, continuing")
		return 0
	}
	a.metrics.RecordCacheEvictions(string(directive), removed)
	logger.Info().Str("directive", string(directive)).Int("removed", removed).Msg("cache directive applied")
	return removed
}

// outcome is the result of one source search.
type outcome struct {
	source   domain.SourceType
	records  []domain.ArticleRecord
	err      *domain.SourceError
	duration time.Duration
}

// dispatch searches every source concurrently. Outcomes are returned in the
// order of selected, whatever order the searches finish in.
func (a *Aggregator) dispatch(ctx context.Context, q domain.SearchQuery, selected []domain.SourceType, logger zerolog.Logger) []outcome {
	outcomes := make([]outcome, len(selected))

	var g errgroup.Group
	g.SetLimit(a.config.MaxConcurrency)
	for i, st := range selected {
		src, _ := a.sources.Get(st)
		g.Go(func() error {
			outcomes[i] = a.searchSource(ctx, src, q, logger)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

type searchReply struct {
	records []domain.ArticleRecord
	err     error
}

// searchSource runs one search under the task timeout. The adapter runs in
// its own goroutine so a search that ignores its context still resolves as
// a timeout; its late reply is discarded.
func (a *Aggregator) searchSource(ctx context.Context, src papersources.Source, q domain.SearchQuery, logger zerolog.Logger) outcome {
	st := src.SourceType()
	logger = observability.WithSearchContext(logger, string(st), string(q.Mode))
	a.metrics.RecordSearchStarted(string(st))
	start := time.Now()

	taskCtx, cancel := context.WithTimeout(ctx, a.config.TaskTimeout)
	defer cancel()

	replies := make(chan searchReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- searchReply{err: domain.MalformedResponse(src.Name(), fmt.Errorf("source panicked: %v", r))}
			}
		}()
		records, err := src.Search(taskCtx, q)
		replies <- searchReply{records: records, err: err}
	}()

	var reply searchReply
	select {
	case reply = <-replies:
	case <-taskCtx.Done():
		reply = searchReply{err: taskCtx.Err()}
	}

	o := outcome{source: st, duration: time.Since(start)}
	if reply.err == nil && ctx.Err() != nil {
		// Data from a cancelled run is discarded.
		reply.err = ctx.Err()
	}
	if reply.err != nil {
		o.err = domain.ClassifySourceError(st, reply.err)
		if errors.Is(reply.err, context.Canceled) {
			logger.Debug().Err(reply.err).Msg("source search cancelled")
		} else {
			logger.Warn().Err(reply.err).Str("reason", string(o.err.Reason)).Msg("source search failed")
		}
		a.metrics.RecordSearchFailed(string(st), string(o.err.Reason), o.duration.Seconds())
		return o
	}

	o.records = papersources.Finalize(reply.records, q.Limit)
	logger.Info().Int("records", len(o.records)).Dur("duration", o.duration).Msg("source search completed")
	a.metrics.RecordSearchCompleted(string(st), len(o.records), o.duration.Seconds())
	return o
}

func sourceNames(sources []domain.SourceType) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}
