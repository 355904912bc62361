package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httpserver "github.com/helixir/research-finder/internal/server/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Long: `Serve exposes searches, cache management, health checks and Prometheus
metrics over HTTP. Runs share one cache and one set of rate limiters, so
concurrent requests never exceed a provider's limit.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.HTTPAddress()
		}
		return serve(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address, overriding server.host and server.http_port")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, addr string) error {
	log := logger.With().Str("component", "server").Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	srv := httpserver.NewServer(httpserver.Config{
		Address:         addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     cfg.Metrics.Path,
	}, a.aggregator, a.registry, a.store, metricsHandler, log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	log.Info().
		Str("http_address", addr).
		Strs("enabled_sources", sourceIDs(a)).
		Msg("research-finder is ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		return err
	}

	// The signal context is already done; shut down on a fresh one.
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	log.Info().Msg("research-finder shutdown complete")
	return nil
}

func sourceIDs(a *app) []string {
	types := a.registry.EnabledTypes()
	out := make([]string, len(types))
	for i, st := range types {
		out[i] = string(st)
	}
	return out
}
