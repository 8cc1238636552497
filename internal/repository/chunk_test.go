//go:build integration

package repository

import (
	"testing"

	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// basisVector returns a unit vector along one axis. Identical axes are
// at cosine distance 0, different axes at distance 1.
func basisVector(axis int) []float32 {
	vec := make([]float32, chunkEmbeddingDimensions)
	vec[axis] = 1
	return vec
}

func leaseChunk(ordinal, axis int) domain.Chunk {
	return domain.Chunk{
		ID:             domain.ChunkID("lease.txt", ordinal),
		SourceDocument: "lease.txt",
		Ordinal:        ordinal,
		Text:           "lease clause",
		Metadata:       map[string]any{"source": "lease.txt", "chunk_index": ordinal},
		Embedding:      basisVector(axis),
	}
}

func TestChunkRepository_UpsertAndQueryNearest(t *testing.T) {
	ctx, pool := setupTestPool(t)
	tenant := testTenant("a1b2c3d4e5f60718", "acme-legal")
	repo := NewChunkRepository(pool)

	require.NoError(t, repo.Upsert(ctx, tenant, []domain.Chunk{
		leaseChunk(1, 0),
		leaseChunk(2, 1),
		leaseChunk(3, 2),
	}))

	matches, err := repo.QueryNearest(ctx, tenant, basisVector(1), 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, domain.ChunkID("lease.txt", 2), matches[0].Chunk.ID)
	assert.InDelta(t, 0.0, matches[0].Distance, 1e-6)
	assert.InDelta(t, 1.0, matches[1].Distance, 1e-6)
}

func TestChunkRepository_UpsertReplacesByID(t *testing.T) {
	ctx, pool := setupTestPool(t)
	tenant := testTenant("a1b2c3d4e5f60718", "acme-legal")
	repo := NewChunkRepository(pool)

	chunk := leaseChunk(1, 0)
	require.NoError(t, repo.Upsert(ctx, tenant, []domain.Chunk{chunk}))

	chunk.Text = "amended clause"
	require.NoError(t, repo.Upsert(ctx, tenant, []domain.Chunk{chunk}))

	count, err := repo.Count(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	matches, err := repo.QueryNearest(ctx, tenant, basisVector(0), 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "amended clause", matches[0].Chunk.Text)
}

func TestChunkRepository_MetadataFilter(t *testing.T) {
	ctx, pool := setupTestPool(t)
	tenant := testTenant("a1b2c3d4e5f60718", "acme-legal")
	repo := NewChunkRepository(pool)

	contract := leaseChunk(1, 0)
	contract.Metadata["category"] = "contract"
	statute := leaseChunk(2, 1)
	statute.Metadata["category"] = "statute"
	require.NoError(t, repo.Upsert(ctx, tenant, []domain.Chunk{contract, statute}))

	matches, err := repo.QueryNearest(ctx, tenant, basisVector(0), 10, map[string]any{"category": "statute"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, statute.ID, matches[0].Chunk.ID)
}

func TestChunkRepository_PendingEmbeddingBackfill(t *testing.T) {
	ctx, pool := setupTestPool(t)
	tenant := testTenant("a1b2c3d4e5f60718", "acme-legal")
	repo := NewChunkRepository(pool)

	embedded := leaseChunk(1, 0)
	pending := leaseChunk(2, 0)
	pending.Embedding = nil
	require.NoError(t, repo.Upsert(ctx, tenant, []domain.Chunk{embedded, pending}))

	// Chunks without vectors are invisible to search until backfilled.
	matches, err := repo.QueryNearest(ctx, tenant, basisVector(0), 10, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	pendingChunks, err := repo.ListPendingEmbeddings(ctx, tenant, 10)
	require.NoError(t, err)
	require.Len(t, pendingChunks, 1)
	assert.Equal(t, pending.ID, pendingChunks[0].ID)

	count, err := repo.CountPendingEmbeddings(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.SetEmbedding(ctx, tenant, pending.ID, basisVector(1)))

	pendingChunks, err = repo.ListPendingEmbeddings(ctx, tenant, 10)
	require.NoError(t, err)
	assert.Empty(t, pendingChunks)

	count, err = repo.CountPendingEmbeddings(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	matches, err = repo.QueryNearest(ctx, tenant, basisVector(0), 10, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestChunkRepository_TenantIsolation(t *testing.T) {
	ctx, pool := setupTestPool(t)
	repo := NewChunkRepository(pool)

	tenantA := testTenant("a1b2c3d4e5f60718", "firm-a")
	tenantB := testTenant("b2c3d4e5f6071829", "firm-b")

	require.NoError(t, repo.Upsert(ctx, tenantA, []domain.Chunk{leaseChunk(1, 0)}))

	matches, err := repo.QueryNearest(ctx, tenantB, basisVector(0), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	count, err := repo.Count(ctx, tenantB)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
