package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/counsel-labs/lexrag/internal/database"
	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const chunkEmbeddingDimensions = 1536

// ChunkRepository is the tenant-scoped vector store. Each tenant's chunks
// live in that tenant's own Postgres schema; there is no shared table and
// no tenant-id filter. The collection is created lazily on first use with
// the cosine metric recorded in collection_meta.
type ChunkRepository struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	ensured map[string]bool
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{
		pool:    pool,
		ensured: make(map[string]bool),
	}
}

func chunksTable(t *domain.Tenant) string {
	return pgx.Identifier{t.SchemaName(), "chunks"}.Sanitize()
}

func metaTable(t *domain.Tenant) string {
	return pgx.Identifier{t.SchemaName(), "collection_meta"}.Sanitize()
}

// EnsureCollection creates the tenant schema and chunk tables if absent,
// retrying transient failures with bounded exponential backoff. A
// collection recorded with a metric other than cosine is a permanent
// error, never a silent fallback.
func (r *ChunkRepository) EnsureCollection(ctx context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	if r.ensured[tenant.ID] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	err := database.RetryInit(ctx, "chunk collection", func(ctx context.Context) error {
		return r.initCollection(ctx, tenant)
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.ensured[tenant.ID] = true
	r.mu.Unlock()
	return nil
}

func (r *ChunkRepository) initCollection(ctx context.Context, tenant *domain.Tenant) error {
	schema := pgx.Identifier{tenant.SchemaName()}.Sanitize()

	if _, err := r.pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
		return err
	}

	if _, err := r.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (key text PRIMARY KEY, value text NOT NULL)`,
		metaTable(tenant),
	)); err != nil {
		return err
	}

	if _, err := r.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (key, value) VALUES ('distance_metric', 'cosine') ON CONFLICT (key) DO NOTHING`,
		metaTable(tenant),
	)); err != nil {
		return err
	}

	var metric string
	err := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT value FROM %s WHERE key = 'distance_metric'`,
		metaTable(tenant),
	)).Scan(&metric)
	if err != nil {
		return err
	}
	if metric != "cosine" {
		// Retrying cannot fix a metric mismatch.
		return backoff.Permanent(domain.ErrWrongDistanceMetric)
	}

	if _, err := r.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id text PRIMARY KEY,
			source_document text NOT NULL,
			ordinal int NOT NULL,
			content text NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}',
			embedding vector(%d),
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL
		)`,
		chunksTable(tenant), chunkEmbeddingDimensions,
	)); err != nil {
		return err
	}

	indexName := pgx.Identifier{tenant.SchemaName() + "_chunks_embedding_idx"}.Sanitize()
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
		indexName, chunksTable(tenant),
	)); err != nil {
		return err
	}

	return nil
}

// Upsert inserts or replaces chunks by id. Re-submitting an id replaces
// the stored content without duplicating the row.
func (r *ChunkRepository) Upsert(ctx context.Context, tenant *domain.Tenant, chunks []domain.Chunk) error {
	if err := r.EnsureCollection(ctx, tenant); err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		updatedAt := c.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}

		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}

		var embedding any
		if c.Embedding != nil {
			embedding = pgvector.NewVector(c.Embedding)
		}

		_, err = r.pool.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, source_document, ordinal, content, metadata, embedding, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
				source_document = EXCLUDED.source_document,
				ordinal = EXCLUDED.ordinal,
				content = EXCLUDED.content,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding,
				updated_at = EXCLUDED.updated_at`,
			chunksTable(tenant),
		),
			c.ID, c.SourceDocument, c.Ordinal, c.Text, metadata, embedding, createdAt, updatedAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// QueryNearest returns the k nearest chunks by cosine distance, in index
// order, optionally restricted to chunks whose metadata contains every
// filter key/value pair.
func (r *ChunkRepository) QueryNearest(ctx context.Context, tenant *domain.Tenant, embedding []float32, k int, filter map[string]any) ([]*domain.ChunkMatch, error) {
	if err := r.EnsureCollection(ctx, tenant); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}

	query := fmt.Sprintf(
		`SELECT id, source_document, ordinal, content, metadata, embedding <=> $1 AS distance
		 FROM %s
		 WHERE embedding IS NOT NULL`,
		chunksTable(tenant),
	)
	args := []any{pgvector.NewVector(embedding)}

	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata filter: %w", err)
		}
		query += ` AND metadata @> $2`
		args = append(args, filterJSON)
	}

	query += fmt.Sprintf(` ORDER BY distance LIMIT %d`, k)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*domain.ChunkMatch
	for rows.Next() {
		var (
			chunk        domain.Chunk
			metadataJSON []byte
			distance     float64
		)
		if err := rows.Scan(&chunk.ID, &chunk.SourceDocument, &chunk.Ordinal, &chunk.Text, &metadataJSON, &distance); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &chunk.Metadata); err != nil {
				return nil, err
			}
		}
		matches = append(matches, &domain.ChunkMatch{Chunk: chunk, Distance: distance})
	}
	return matches, rows.Err()
}

// Count returns the number of stored chunks for the tenant.
func (r *ChunkRepository) Count(ctx context.Context, tenant *domain.Tenant) (int, error) {
	if err := r.EnsureCollection(ctx, tenant); err != nil {
		return 0, err
	}

	var count int
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, chunksTable(tenant))).Scan(&count)
	return count, err
}

// CountPendingEmbeddings returns the number of chunks still waiting for
// an embedding.
func (r *ChunkRepository) CountPendingEmbeddings(ctx context.Context, tenant *domain.Tenant) (int, error) {
	if err := r.EnsureCollection(ctx, tenant); err != nil {
		return 0, err
	}

	var count int
	err := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT count(*) FROM %s WHERE embedding IS NULL`, chunksTable(tenant),
	)).Scan(&count)
	return count, err
}

// ListPendingEmbeddings returns chunks stored without an embedding, for
// the backfill worker.
func (r *ChunkRepository) ListPendingEmbeddings(ctx context.Context, tenant *domain.Tenant, limit int) ([]domain.Chunk, error) {
	if err := r.EnsureCollection(ctx, tenant); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, source_document, ordinal, content, metadata
		 FROM %s WHERE embedding IS NULL ORDER BY created_at LIMIT %d`,
		chunksTable(tenant), limit,
	))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			chunk        domain.Chunk
			metadataJSON []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.SourceDocument, &chunk.Ordinal, &chunk.Text, &metadataJSON); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &chunk.Metadata); err != nil {
				return nil, err
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// SetEmbedding attaches an embedding to a stored chunk.
func (r *ChunkRepository) SetEmbedding(ctx context.Context, tenant *domain.Tenant, chunkID string, embedding []float32) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET embedding = $1, updated_at = $2 WHERE id = $3`,
		chunksTable(tenant),
	), pgvector.NewVector(embedding), time.Now().UTC(), chunkID)
	return err
}
