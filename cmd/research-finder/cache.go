package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/domain"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached responses",
	Long:  "Remove expired cached responses (--expired) or every cached response (--all).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		directive, err := clearDirectiveFromFlags(cmd)
		if err != nil {
			return err
		}

		store, err := cache.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer store.Close() //nolint:errcheck

		removed, err := cache.Clear(cmd.Context(), store, directive)
		if err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached responses.\n", removed)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many responses are cached",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := cache.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer store.Close() //nolint:errcheck

		st, err := store.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("read cache stats: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d cached responses, %d expired (backend %s)\n", st.Entries, st.Expired, cfg.Cache.Backend)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().Bool("expired", false, "remove only expired responses")
	cacheClearCmd.Flags().Bool("all", false, "remove every cached response")
	cacheClearCmd.MarkFlagsMutuallyExclusive("expired", "all")
	cacheClearCmd.MarkFlagsOneRequired("expired", "all")

	cacheCmd.AddCommand(cacheClearCmd, cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}

func clearDirectiveFromFlags(cmd *cobra.Command) (domain.CacheDirective, error) {
	all, _ := cmd.Flags().GetBool("all")
	expired, _ := cmd.Flags().GetBool("expired")
	switch {
	case all:
		return domain.CacheDirectiveClearAll, nil
	case expired:
		return domain.CacheDirectiveClearExpired, nil
	default:
		return "", domain.NewValidationError("cache clear", "one of --expired or --all is required")
	}
}
