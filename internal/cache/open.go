package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/research-finder/internal/config"
	"github.com/helixir/research-finder/internal/database"
)

// Open returns the store selected by cfg.Cache.Backend.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendSQLite, "":
		store, err := NewSQLiteStore(ctx, cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("path", cfg.Cache.Path).Msg("opened sqlite cache")
		return store, nil

	case config.CacheBackendPostgres:
		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres cache: %w", err)
		}
		if cfg.Database.MigrationAutoRun {
			if err := Migrate(db, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		logger.Debug().Str("host", cfg.Database.Host).Str("database", cfg.Database.Name).Msg("opened postgres cache")
		return NewPostgresStore(db, db.Close), nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Migrate applies the embedded cache schema to db.
func Migrate(db *database.DB, logger zerolog.Logger) error {
	m, err := database.NewMigrator(db, Migrations, MigrationsDir, logger)
	if err != nil {
		return fmt.Errorf("cache migrations: %w", err)
	}
	defer m.Close()
	return m.Up()
}
