package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/research-finder/internal/cache"
	"github.com/helixir/research-finder/internal/config"
	"github.com/helixir/research-finder/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL cache schema",
	Long: `Migrate applies or rolls back the schema of the shared PostgreSQL cache.
It only applies when cache.backend is postgres; the SQLite cache creates its
table on open.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		up, _ := flags.GetBool("up")
		down, _ := flags.GetBool("down")
		steps, _ := flags.GetInt("steps")
		version, _ := flags.GetBool("version")
		force, _ := flags.GetInt("force")

		// Validate that exactly one action is specified.
		actionCount := 0
		for _, set := range []bool{up, down, steps != 0, version, force >= 0} {
			if set {
				actionCount++
			}
		}
		if actionCount == 0 {
			return fmt.Errorf("specify one of --up, --down, --steps N, --version, --force V")
		}
		if actionCount > 1 {
			return fmt.Errorf("specify only one action at a time")
		}

		if cfg.Cache.Backend != config.CacheBackendPostgres {
			return fmt.Errorf("cache backend is %q; migrations only apply to %q", cfg.Cache.Backend, config.CacheBackendPostgres)
		}

		log := logger.With().Str("component", "migrate").Logger()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		db, err := database.New(ctx, &cfg.Database, log)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		log.Info().Msg("database connection established")

		migrator, err := database.NewMigrator(db, cache.Migrations, cache.MigrationsDir, log)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		switch {
		case up:
			log.Info().Msg("running all pending migrations")
			if err := migrator.Up(); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
		case down:
			log.Warn().Msg("rolling back all migrations")
			if err := migrator.Down(); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
		case steps != 0:
			log.Info().Int("steps", steps).Msg("running migration steps")
			if err := migrator.Steps(steps); err != nil {
				return fmt.Errorf("migrate steps: %w", err)
			}
		case force >= 0:
			log.Warn().Int("version", force).Msg("forcing migration version")
			if err := migrator.Force(force); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
		}
		printVersion(migrator, log)
		return nil
	},
}

func init() {
	f := migrateCmd.Flags()
	f.Bool("up", false, "run all pending migrations")
	f.Bool("down", false, "roll back all migrations")
	f.Int("steps", 0, "run N migration steps (positive=up, negative=down)")
	f.Bool("version", false, "print the current migration version")
	f.Int("force", -1, "force set migration version (use to recover from failed migrations)")

	rootCmd.AddCommand(migrateCmd)
}

// printVersion logs the current migration version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
