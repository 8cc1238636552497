package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/counsel-labs/lexrag/internal/cache"
	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryCacheStore is the persistent cache.Store implementation, one table
// per tenant schema. Expired rows are left in place; Put overwrites them
// (last writer wins).
type QueryCacheStore struct {
	pool   *pgxpool.Pool
	tenant *domain.Tenant

	mu      sync.Mutex
	ensured bool
}

var _ cache.Store = (*QueryCacheStore)(nil)

func NewQueryCacheStore(pool *pgxpool.Pool, tenant *domain.Tenant) *QueryCacheStore {
	return &QueryCacheStore{pool: pool, tenant: tenant}
}

func (s *QueryCacheStore) table() string {
	return pgx.Identifier{s.tenant.SchemaName(), "query_cache"}.Sanitize()
}

func (s *QueryCacheStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	if s.ensured {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	schema := pgx.Identifier{s.tenant.SchemaName()}.Sanitize()
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			key text PRIMARY KEY,
			payload bytea NOT NULL,
			created_at timestamptz NOT NULL
		)`,
		s.table(),
	)); err != nil {
		return err
	}

	s.mu.Lock()
	s.ensured = true
	s.mu.Unlock()
	return nil
}

func (s *QueryCacheStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	entry := cache.Entry{Key: key}
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT payload, created_at FROM %s WHERE key = $1`,
		s.table(),
	), key).Scan(&entry.Payload, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (s *QueryCacheStore) Put(ctx context.Context, key string, payload []byte, createdAt time.Time) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (key, payload, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`,
		s.table(),
	), key, payload, createdAt)
	return err
}
