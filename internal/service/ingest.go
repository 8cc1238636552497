package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/counsel-labs/lexrag/internal/domain"
)

// ChunkIngestStore is the write side of the chunk collection.
type ChunkIngestStore interface {
	EnsureCollection(ctx context.Context, tenant *domain.Tenant) error
	Upsert(ctx context.Context, tenant *domain.Tenant, chunks []domain.Chunk) error
}

// IngestResult summarizes one document ingestion.
type IngestResult struct {
	DocumentID        string
	ChunkCount        int
	PendingEmbeddings int
}

// IngestService splits a document into chunks, embeds them and upserts
// the lot into the tenant's collection. Chunk ids are deterministic per
// (document, ordinal), so re-ingesting a document overwrites its
// previous chunks instead of accumulating duplicates.
type IngestService struct {
	store      ChunkIngestStore
	embeddings *EmbeddingService
	chunkCfg   ChunkConfig
}

func NewIngestService(store ChunkIngestStore, embeddings *EmbeddingService) *IngestService {
	return &IngestService{
		store:      store,
		embeddings: embeddings,
		chunkCfg:   DefaultChunkConfig(),
	}
}

// IngestDocument chunks and stores content under documentID. An
// embedding failure does not abort the ingest; the affected chunks are
// stored without a vector and picked up later by the backfill worker.
func (s *IngestService) IngestDocument(ctx context.Context, tenant *domain.Tenant, documentID, content string, metadata map[string]any) (*IngestResult, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document id is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document content is required")
	}

	if err := s.store.EnsureCollection(ctx, tenant); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStorageFailure, "chunk collection init failed", err)
	}

	pieces := chunkText(content, s.chunkCfg)
	now := time.Now().UTC()

	chunks := make([]domain.Chunk, 0, len(pieces))
	pending := 0
	for i, text := range pieces {
		chunk := domain.Chunk{
			ID:             domain.ChunkID(documentID, i+1),
			SourceDocument: documentID,
			Ordinal:        i + 1,
			Text:           text,
			Metadata:       chunkMetadata(documentID, i+1, metadata),
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		embedding, err := s.embeddings.GetOrCompute(ctx, text)
		if err != nil {
			pending++
			log.Printf("warning: embedding deferred for chunk %s: %v", chunk.ID, err)
		} else {
			chunk.Embedding = embedding
		}

		chunks = append(chunks, chunk)
	}

	if err := s.store.Upsert(ctx, tenant, chunks); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStorageFailure, "chunk upsert failed", err)
	}

	return &IngestResult{
		DocumentID:        documentID,
		ChunkCount:        len(chunks),
		PendingEmbeddings: pending,
	}, nil
}

func chunkMetadata(documentID string, ordinal int, extra map[string]any) map[string]any {
	metadata := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		metadata[k] = v
	}
	metadata["source"] = documentID
	metadata["chunk_index"] = ordinal
	return metadata
}
