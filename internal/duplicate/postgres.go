package duplicate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS receipt_fingerprints (
		fingerprint TEXT PRIMARY KEY,
		seen_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// Inserting returns the row; a conflict only returns it when the existing row
// has expired and is refreshed.
const checkAndAddQuery = `
	INSERT INTO receipt_fingerprints (fingerprint, seen_at)
	VALUES ($1, now())
	ON CONFLICT (fingerprint) DO UPDATE SET seen_at = EXCLUDED.seen_at
	WHERE $2::float8 > 0
	  AND receipt_fingerprints.seen_at < now() - make_interval(secs => $2::float8)
	RETURNING fingerprint
`

// PostgresStore shares the fingerprint set between service instances
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore connects to databaseURL and verifies the connection
func NewPostgresStore(ctx context.Context, databaseURL string, ttl time.Duration) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

// EnsureSchema creates the fingerprint table if it is missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CheckAndAdd(ctx context.Context, fingerprint string) (bool, error) {
	var stored string
	err := s.pool.QueryRow(ctx, checkAndAddQuery, fingerprint, s.ttl.Seconds()).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("recording fingerprint: %w", err)
	}
	return false, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
