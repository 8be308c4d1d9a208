package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridianbio/publication-discovery-service/internal/database"
)

// Compile-time interface verification.
var _ Store = (*Postgres)(nil)

// Postgres is a Store backed by the cache_entries table. Expiry is evaluated
// in SQL against the database clock, so multiple instances sharing one
// database agree on staleness.
type Postgres struct {
	db database.DBTX
}

// NewPostgres creates a Postgres-backed cache on top of an existing
// connection pool or transaction.
func NewPostgres(db database.DBTX) *Postgres {
	return &Postgres{db: db}
}

// Get returns the value for key if a live entry exists. Expired rows are
// filtered in the query and left for DeleteExpired to remove.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `
		SELECT value
		FROM cache_entries
		WHERE key = $1
			AND created_at + (ttl_seconds * INTERVAL '1 second') > NOW()`

	var value []byte
	err := p.db.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return value, true, nil
}

// Set upserts the entry for key. The single-statement upsert makes the write
// atomic at entry granularity; concurrent writers resolve last-write-wins.
func (p *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := `
		INSERT INTO cache_entries (key, value, created_at, ttl_seconds)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			created_at = EXCLUDED.created_at,
			ttl_seconds = EXCLUDED.ttl_seconds`

	_, err := p.db.Exec(ctx, query, key, value, int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	return nil
}

// Invalidate removes the entry for key. Deleting a missing key is a no-op.
func (p *Postgres) Invalidate(ctx context.Context, key string) error {
	query := `DELETE FROM cache_entries WHERE key = $1`

	if _, err := p.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}

	return nil
}

// DeleteExpired removes rows whose TTL has elapsed and returns how many were
// deleted. Correctness does not depend on it; it only bounds table growth.
func (p *Postgres) DeleteExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM cache_entries
		WHERE created_at + (ttl_seconds * INTERVAL '1 second') <= NOW()`

	tag, err := p.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	return tag.RowsAffected(), nil
}
