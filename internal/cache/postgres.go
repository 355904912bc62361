package cache

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-finder/internal/database"
	"github.com/helixir/research-finder/internal/domain"
)

// Migrations holds the Postgres cache schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory within Migrations holding the files.
const MigrationsDir = "migrations"

// PostgresStore implements Store on a shared PostgreSQL database, so several
// processes can reuse each other's responses.
type PostgresStore struct {
	db     database.DBTX
	closer func()
	now    func() time.Time
}

// NewPostgresStore wraps db. closer, when non-nil, is called by Close.
func NewPostgresStore(db database.DBTX, closer func()) *PostgresStore {
	return &PostgresStore{db: db, closer: closer, now: time.Now}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		payload   []byte
		sum       string
		expiresAt time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT payload, checksum, expires_at FROM cache_entries WHERE key = $1`, key,
	).Scan(&payload, &sum, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("postgres cache: get %s: %w", key, err)
	}
	if s.now().After(expiresAt) {
		return nil, domain.ErrCacheMiss
	}
	if err := verify(key, payload, sum); err != nil {
		return nil, err
	}
	return payload, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return domain.NewValidationError("ttl", "ttl must be positive")
	}
	now := s.now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO cache_entries (key, payload, checksum, stored_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			checksum = EXCLUDED.checksum,
			stored_at = EXCLUDED.stored_at,
			expires_at = EXCLUDED.expires_at`,
		key, payload, checksum(payload), now, now.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("postgres cache: put %s: %w", key, err)
	}
	return nil
}

// ClearExpired implements Store.
func (s *PostgresStore) ClearExpired(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at < $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres cache: clear expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClearAll implements Store.
func (s *PostgresStore) ClearAll(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return 0, fmt.Errorf("postgres cache: clear all: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var entries, expired int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at < $1) FROM cache_entries`,
		s.now().UTC(),
	).Scan(&entries, &expired)
	if err != nil {
		return Stats{}, fmt.Errorf("postgres cache: stats: %w", err)
	}
	return Stats{Entries: int(entries), Expired: int(expired)}, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}
