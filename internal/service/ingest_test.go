package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChunkIngestStore is a mock implementation of ChunkIngestStore
type MockChunkIngestStore struct {
	mock.Mock
}

func (m *MockChunkIngestStore) EnsureCollection(ctx context.Context, tenant *domain.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockChunkIngestStore) Upsert(ctx context.Context, tenant *domain.Tenant, chunks []domain.Chunk) error {
	args := m.Called(ctx, tenant, chunks)
	return args.Error(0)
}

func TestIngestService_IngestDocument_SingleChunk(t *testing.T) {
	ctx := context.Background()
	tenant := testTenant()
	store := new(MockChunkIngestStore)
	embedder := new(MockEmbeddingClient)
	svc := NewIngestService(store, NewEmbeddingService(embedder))

	store.On("EnsureCollection", ctx, tenant).Return(nil)
	embedder.On("GenerateEmbedding", ctx, "Alpha clause").Return([]float32{0.1}, nil)

	var stored []domain.Chunk
	store.On("Upsert", ctx, tenant, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(2).([]domain.Chunk)
	}).Return(nil)

	result, err := svc.IngestDocument(ctx, tenant, "lease.txt", "Alpha clause", map[string]any{"title": "Lease"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)
	assert.Equal(t, 0, result.PendingEmbeddings)
	require.Len(t, stored, 1)
	assert.Equal(t, "lease.txt_chunk_1", stored[0].ID)
	assert.Equal(t, "lease.txt", stored[0].SourceDocument)
	assert.Equal(t, 1, stored[0].Ordinal)
	assert.Equal(t, []float32{0.1}, stored[0].Embedding)
	assert.Equal(t, "lease.txt", stored[0].Metadata["source"])
	assert.Equal(t, "Lease", stored[0].Metadata["title"])
	assert.Equal(t, 1, stored[0].Metadata["chunk_index"])
}

func TestIngestService_IngestDocument_LongDocumentOrdinals(t *testing.T) {
	ctx := context.Background()
	tenant := testTenant()
	store := new(MockChunkIngestStore)
	embedder := new(MockEmbeddingClient)
	svc := NewIngestService(store, NewEmbeddingService(embedder))

	store.On("EnsureCollection", ctx, tenant).Return(nil)
	embedder.On("GenerateEmbedding", ctx, mock.Anything).Return([]float32{0.1}, nil)

	var stored []domain.Chunk
	store.On("Upsert", ctx, tenant, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(2).([]domain.Chunk)
	}).Return(nil)

	// Well past MaxChars, so the splitter must produce several chunks.
	content := strings.Repeat("The party of the first part shall indemnify the party of the second part. ", 60)
	result, err := svc.IngestDocument(ctx, tenant, "msa.txt", content, nil)

	require.NoError(t, err)
	assert.Greater(t, result.ChunkCount, 1)
	for i, c := range stored {
		assert.Equal(t, domain.ChunkID("msa.txt", i+1), c.ID)
		assert.Equal(t, i+1, c.Ordinal)
	}
}

func TestIngestService_IngestDocument_EmbeddingFailureDefersChunk(t *testing.T) {
	ctx := context.Background()
	tenant := testTenant()
	store := new(MockChunkIngestStore)
	embedder := new(MockEmbeddingClient)
	svc := NewIngestService(store, NewEmbeddingService(embedder))

	store.On("EnsureCollection", ctx, tenant).Return(nil)
	embedder.On("GenerateEmbedding", ctx, mock.Anything).Return(nil, errors.New("rate limited"))

	var stored []domain.Chunk
	store.On("Upsert", ctx, tenant, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(2).([]domain.Chunk)
	}).Return(nil)

	result, err := svc.IngestDocument(ctx, tenant, "nda.txt", "Confidentiality clause", nil)

	// The ingest still succeeds; the chunk waits for backfill.
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)
	assert.Equal(t, 1, result.PendingEmbeddings)
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].Embedding)
}

func TestIngestService_IngestDocument_Validation(t *testing.T) {
	ctx := context.Background()
	tenant := testTenant()
	svc := NewIngestService(new(MockChunkIngestStore), NewEmbeddingService(new(MockEmbeddingClient)))

	_, err := svc.IngestDocument(ctx, tenant, "", "content", nil)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)

	_, err = svc.IngestDocument(ctx, tenant, "doc.txt", "   ", nil)
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
}

func TestIngestService_IngestDocument_UpsertFailure(t *testing.T) {
	ctx := context.Background()
	tenant := testTenant()
	store := new(MockChunkIngestStore)
	embedder := new(MockEmbeddingClient)
	svc := NewIngestService(store, NewEmbeddingService(embedder))

	store.On("EnsureCollection", ctx, tenant).Return(nil)
	embedder.On("GenerateEmbedding", ctx, mock.Anything).Return([]float32{0.1}, nil)
	store.On("Upsert", ctx, tenant, mock.Anything).Return(errors.New("connection reset"))

	_, err := svc.IngestDocument(ctx, tenant, "doc.txt", "some clause", nil)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeStorageFailure, domainErr.Code)
}
