package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	k TEXT PRIMARY KEY,
	v BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore is the production Store backed by a single Postgres
// table, with real transactions for atomic multi-writes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool and ensures the schema exists
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool sizing
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks backend connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, "SELECT v FROM kv_entries WHERE k = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

// Put upserts a value
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_entries (k, v, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes a key; deleting a missing key is not an error
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM kv_entries WHERE k = $1", key); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// List returns up to Limit keys with the prefix, strictly after the
// cursor, in lexicographic order.
func (s *PostgresStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT k FROM kv_entries
		WHERE k LIKE $1 ESCAPE '\' AND k > $2
		ORDER BY k
		LIMIT $3
	`, escapeLikePrefix(opts.Prefix)+"%", opts.Cursor, limit+1)
	if err != nil {
		return ListResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return ListResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return paginate(keys, limit), nil
}

// Begin starts an atomic multi-write transaction
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &postgresTx{tx: tx, ctx: ctx}, nil
}

type postgresTx struct {
	tx  pgx.Tx
	ctx context.Context
}

func (t *postgresTx) Put(key string, value []byte) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO kv_entries (k, v, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (t *postgresTx) Delete(key string) error {
	if _, err := t.tx.Exec(t.ctx, "DELETE FROM kv_entries WHERE k = $1", key); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// escapeLikePrefix escapes LIKE metacharacters so the prefix matches
// literally.
func escapeLikePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}

// paginate trims a limit+1 fetch into one page with cursor and hasMore
func paginate(keys []string, limit int) ListResult {
	result := ListResult{}
	if len(keys) > limit {
		result.HasMore = true
		keys = keys[:limit]
	}
	result.Keys = keys
	if result.HasMore && len(keys) > 0 {
		result.Cursor = keys[len(keys)-1]
	}
	return result
}
