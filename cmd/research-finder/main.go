// Package main provides the research-finder command line tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/research-finder/internal/config"
	"github.com/helixir/research-finder/internal/observability"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "research-finder",
	Short: "Search academic literature across several providers at once",
	Long: `research-finder sends one query to Semantic Scholar, arXiv, PubMed, CrossRef,
OpenAlex and Google Scholar, merges duplicate records and exports the results.

Each provider is paced by its own rate limit and responses are cached on disk,
so repeating a search does not hit the providers again until the cache expires.
Credentials are read from the environment (or a .env file): S2_API_KEY,
PUBMED_API_KEY, OPENALEX_EMAIL, OPENALEX_API_KEY and CROSSREF_MAILTO.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			c.Logging.Level = lvl
		}
		cfg = c

		logger = observability.NewLogger(observability.LoggingConfig{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			Output:     cfg.Logging.Output,
			File:       cfg.Logging.File,
			AddSource:  cfg.Logging.AddSource,
			TimeFormat: cfg.Logging.TimeFormat,
		})
		for _, w := range cfg.Warnings() {
			logger.Warn().Msg(w)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config.yaml, ./config/config.yaml or ~/.research-finder/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override the configured log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
