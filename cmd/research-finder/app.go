package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/helixir/research-finder/internal/aggregator"
	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/config"
	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/observability"
	"github.com/helixir/research-finder/internal/papersources"
	"github.com/helixir/research-finder/internal/papersources/arxiv"
	"github.com/helixir/research-finder/internal/papersources/crossref"
	"github.com/helixir/research-finder/internal/papersources/googlescholar"
	"github.com/helixir/research-finder/internal/papersources/openalex"
	"github.com/helixir/research-finder/internal/papersources/pubmed"
	"github.com/helixir/research-finder/internal/papersources/semanticscholar"
)

// app holds the components shared by the commands that run searches.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	metrics    *observability.Metrics
	store      cache.Store
	registry   *papersources.Registry
	aggregator *aggregator.Aggregator
}

// newApp opens the cache and builds the source registry and aggregator.
// reg receives the metrics; nil disables them.
func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger zerolog.Logger) (*app, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if reg != nil && cfg.Metrics.Enabled {
		metrics = observability.NewMetricsWithRegistry(cfg.Metrics.Namespace, reg)
	}

	store, err := cache.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	registry := buildRegistry(cfg, store, metrics, nil, logger)

	agg := aggregator.New(registry, store, aggregator.Config{
		TaskTimeout:    cfg.Aggregator.TaskTimeout,
		MaxConcurrency: cfg.Aggregator.MaxConcurrency,
	}, metrics, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		store:      store,
		registry:   registry,
		aggregator: agg,
	}, nil
}

// Close releases the cache.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close cache")
	}
}

// buildRegistry registers one adapter per provider. Every source is
// registered, disabled ones included, so they can be listed and rejected
// by name. transport overrides the HTTP round tripper; nil uses the default.
func buildRegistry(
	cfg *config.Config,
	store cache.Store,
	metrics *observability.Metrics,
	transport http.RoundTripper,
	logger zerolog.Logger,
) *papersources.Registry {
	limiters := papersources.NewLimiters(cfg.Sources.Credentialed)
	registry := papersources.NewRegistry()

	fetcherFor := func(st domain.SourceType, apiKeyHeader, apiKey string) *papersources.Fetcher {
		sc := cfg.Sources.For(st)
		client := papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:       st,
			Timeout:      sc.Timeout,
			Limiter:      limiters.For(st),
			MaxRetries:   sc.MaxRetries,
			RetryDelay:   sc.RetryDelay,
			UserAgent:    userAgent(cfg, st),
			APIKey:       apiKey,
			APIKeyHeader: apiKeyHeader,
			Metrics:      metrics,
			Transport:    transport,
		})
		return papersources.NewFetcher(papersources.FetcherConfig{
			Client:  client,
			Cache:   store,
			TTL:     cfg.Cache.TTL,
			Metrics: metrics,
			Logger:  logger,
		})
	}

	s2 := cfg.Sources.SemanticScholar
	registry.Register(semanticscholar.New(semanticscholar.Config{
		BaseURL: s2.BaseURL,
		Enabled: s2.Enabled,
	}, fetcherFor(domain.SourceTypeSemanticScholar, "x-api-key", s2.APIKey)))

	ax := cfg.Sources.ArXiv
	registry.Register(arxiv.New(arxiv.Config{
		BaseURL: ax.BaseURL,
		Enabled: ax.Enabled,
	}, fetcherFor(domain.SourceTypeArXiv, "", "")))

	pm := cfg.Sources.PubMed
	registry.Register(pubmed.New(pubmed.Config{
		BaseURL: pm.BaseURL,
		APIKey:  pm.APIKey,
		Enabled: pm.Enabled,
	}, fetcherFor(domain.SourceTypePubMed, "", "")))

	cr := cfg.Sources.CrossRef
	registry.Register(crossref.New(crossref.Config{
		BaseURL: cr.BaseURL,
		Mailto:  cr.Email,
		Enabled: cr.Enabled,
	}, fetcherFor(domain.SourceTypeCrossRef, "", "")))

	oa := cfg.Sources.OpenAlex
	registry.Register(openalex.New(openalex.Config{
		BaseURL: oa.BaseURL,
		Email:   oa.Email,
		APIKey:  oa.APIKey,
		Enabled: oa.Enabled,
	}, fetcherFor(domain.SourceTypeOpenAlex, "", "")))

	gs := cfg.Sources.GoogleScholar
	registry.Register(googlescholar.New(googlescholar.Config{
		BaseURL: gs.BaseURL,
		Enabled: gs.Enabled,
	}, fetcherFor(domain.SourceTypeGoogleScholar, "", "")))

	return registry
}

// userAgent identifies the tool. CrossRef's requests also carry the contact
// address its polite pool asks for; no other provider receives it.
func userAgent(cfg *config.Config, st domain.SourceType) string {
	if email := cfg.Sources.CrossRef.Email; email != "" && st == domain.SourceTypeCrossRef {
		return fmt.Sprintf("research-finder/%s (mailto:%s)", version, email)
	}
	return fmt.Sprintf("research-finder/%s", version)
}
