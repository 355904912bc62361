package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/helixir/research-finder/internal/aggregator"
	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/export"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search every enabled provider and export the merged results",
	Long: `Search sends the query to the selected providers concurrently, merges records
that share a DOI or title, applies the year and citation filters and writes the
results to the output directory.

Sources that fail are reported in the summary; the search still succeeds with
whatever the other sources returned.`,
	Example: `  research-finder search "graph neural networks" --limit 20 --year-min 2019
  research-finder search --mode author "Jennifer Doudna" --sources pubmed,crossref -f bibtex
  research-finder search crispr --clear-expired --stdout -f json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := searchRequestFromFlags(cmd, args)
		if err != nil {
			return err
		}
		format, err := formatFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, nil, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.aggregator.Run(ctx, req)
		if err != nil {
			return err
		}

		toStdout, _ := cmd.Flags().GetBool("stdout")
		noExport, _ := cmd.Flags().GetBool("no-export")
		filename, _ := cmd.Flags().GetString("output")

		summary := cmd.OutOrStdout()
		if toStdout {
			summary = cmd.ErrOrStderr()
		}
		if err := res.WriteSummary(summary); err != nil {
			return err
		}

		switch {
		case toStdout:
			return export.Write(cmd.OutOrStdout(), res.Records, format)
		case noExport:
			return nil
		}
		return exportResults(summary, export.New(cfg.Output.Dir, logger), res, format, filename)
	},
}

func init() {
	addSearchFlags(searchCmd.Flags())

	searchCmd.MarkFlagsMutuallyExclusive("clear-cache", "clear-expired")
	searchCmd.MarkFlagsMutuallyExclusive("stdout", "no-export")
	searchCmd.MarkFlagsMutuallyExclusive("stdout", "output")

	rootCmd.AddCommand(searchCmd)
}

func addSearchFlags(f *pflag.FlagSet) {
	f.StringP("mode", "m", "keyword", "what the query matches: keyword, title or author")
	f.IntP("limit", "n", domain.DefaultResultLimit, "maximum results per source")
	f.StringSliceP("sources", "s", nil, "sources to query (default: every enabled source)")
	f.Int("year-min", 0, "earliest publication year")
	f.Int("year-max", 0, "latest publication year")
	f.Int("min-citations", 0, "minimum citation count; records with unknown counts are kept")
	f.Bool("clear-cache", false, "remove every cached response before searching")
	f.Bool("clear-expired", false, "remove expired cached responses before searching")
	f.StringP("format", "f", "", "export format: csv, json, bibtex, ris, xlsx or yaml (default from config)")
	f.StringP("output", "o", "", "output file name (default results_<timestamp>)")
	f.Bool("stdout", false, "write records to stdout instead of a file")
	f.Bool("no-export", false, "only print the summary")
}

// searchRequestFromFlags builds and validates the aggregation request.
func searchRequestFromFlags(cmd *cobra.Command, args []string) (aggregator.Request, error) {
	flags := cmd.Flags()
	modeName, _ := flags.GetString("mode")
	limit, _ := flags.GetInt("limit")
	yearMin, _ := flags.GetInt("year-min")
	yearMax, _ := flags.GetInt("year-max")
	minCitations, _ := flags.GetInt("min-citations")
	names, _ := flags.GetStringSlice("sources")
	clearAll, _ := flags.GetBool("clear-cache")
	clearExpired, _ := flags.GetBool("clear-expired")

	mode, err := domain.ParseSearchMode(modeName)
	if err != nil {
		return aggregator.Request{}, err
	}
	if limit <= 0 {
		return aggregator.Request{}, domain.NewValidationError("limit", "must be positive")
	}
	q, err := domain.NewSearchQuery(mode, strings.Join(args, " "), limit, domain.Filters{
		YearMin:      yearMin,
		YearMax:      yearMax,
		MinCitations: minCitations,
	})
	if err != nil {
		return aggregator.Request{}, err
	}

	var sources []domain.SourceType
	for _, name := range names {
		st, err := domain.ParseSourceType(name)
		if err != nil {
			return aggregator.Request{}, err
		}
		sources = append(sources, st)
	}

	directive := domain.CacheDirectiveNone
	switch {
	case clearAll:
		directive = domain.CacheDirectiveClearAll
	case clearExpired:
		directive = domain.CacheDirectiveClearExpired
	}

	return aggregator.Request{Query: q, Sources: sources, CacheDirective: directive}, nil
}

// formatFromFlags resolves --format, falling back to the configured default.
func formatFromFlags(cmd *cobra.Command) (export.Format, error) {
	name, _ := cmd.Flags().GetString("format")
	if name == "" && cfg != nil {
		name = cfg.Output.Format
	}
	if name == "" {
		return export.FormatCSV, nil
	}
	return export.ParseFormat(name)
}

func exportResults(w io.Writer, exp *export.Exporter, res *aggregator.Result, format export.Format, filename string) error {
	path, err := exp.Export(res.Records, format, filename)
	if errors.Is(err, export.ErrNoRecords) {
		fmt.Fprintln(w, "No records to export.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Saved %d records to %s\n", len(res.Records), path)
	return nil
}
