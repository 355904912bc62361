package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// MigrationsTable records applied cache schema versions. It is distinct from
// the default so the cache can share a database with other schemas.
const MigrationsTable = "research_finder_schema_migrations"

// Migrator applies the cache schema from an fs.FS of golang-migrate files.
type Migrator struct {
	m      *migrate.Migrate
	conn   *sql.DB
	logger zerolog.Logger
}

// NewMigrator reads migrations from dir within fsys and applies them over
// db's pool. Close must be called to release the database/sql handle.
func NewMigrator(db *DB, fsys fs.FS, dir string, logger zerolog.Logger) (*Migrator, error) {
	switch {
	case db == nil:
		return nil, errors.New("database is required")
	case db.pool == nil:
		return nil, errors.New("database pool not initialized")
	case fsys == nil:
		return nil, errors.New("migrations filesystem is required")
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations from %s: %w", dir, err)
	}

	conn := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(conn, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{m: m, conn: conn, logger: logger.With().Str("component", "migrator").Logger()}, nil
}

// apply runs op, treating "nothing to do" outcomes as success.
func (mg *Migrator) apply(op string, fn func() error) error {
	err := fn()
	switch {
	case err == nil:
		mg.logger.Info().Str("op", op).Msg("cache schema migrated")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		mg.logger.Info().Str("op", op).Msg("cache schema already current")
		return nil
	case errors.Is(err, os.ErrNotExist):
		// Stepping beyond the first or last migration.
		mg.logger.Info().Str("op", op).Msg("no further migrations")
		return nil
	default:
		return fmt.Errorf("migrate %s: %w", op, err)
	}
}

// Up applies every pending migration.
func (mg *Migrator) Up() error { return mg.apply("up", mg.m.Up) }

// Down reverts every applied migration, dropping the cache table.
func (mg *Migrator) Down() error {
	mg.logger.Warn().Msg("reverting all cache migrations")
	return mg.apply("down", mg.m.Down)
}

// Steps moves n migrations up (n > 0) or down (n < 0).
func (mg *Migrator) Steps(n int) error {
	return mg.apply(fmt.Sprintf("steps %+d", n), func() error { return mg.m.Steps(n) })
}

// Version reports the applied version and whether the last run left it dirty.
func (mg *Migrator) Version() (uint, bool, error) {
	return mg.m.Version()
}

// Force records version as applied without running anything, to recover a
// dirty schema after a failed migration.
func (mg *Migrator) Force(version int) error {
	mg.logger.Warn().Int("version", version).Msg("forcing cache schema version")
	return mg.m.Force(version)
}

// Close releases the migration source and database handle.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if err := mg.conn.Close(); err != nil && dbErr == nil {
		dbErr = err
	}
	return errors.Join(srcErr, dbErr)
}
