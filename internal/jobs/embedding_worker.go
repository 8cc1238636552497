package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/counsel-labs/lexrag/internal/domain"
)

const (
	// BatchSize caps how many pending chunks are picked up per tenant
	// on each poll.
	BatchSize = 50
)

// TenantLister enumerates the tenants whose chunk stores should be
// scanned for backfill work.
type TenantLister interface {
	List(ctx context.Context) ([]*domain.Tenant, error)
}

// PendingChunkStore exposes the chunks stored without an embedding and
// lets the worker attach one.
type PendingChunkStore interface {
	ListPendingEmbeddings(ctx context.Context, tenant *domain.Tenant, limit int) ([]domain.Chunk, error)
	SetEmbedding(ctx context.Context, tenant *domain.Tenant, chunkID string, embedding []float32) error
}

// Embedder computes the vector for a chunk's text.
type Embedder interface {
	GetOrCompute(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingWorker backfills embeddings for chunks that were ingested
// while the embedding service was unavailable. Ingestion stores such
// chunks with a nil embedding instead of failing the request; this
// worker picks them up on a later poll.
type EmbeddingWorker struct {
	tenants  TenantLister
	chunks   PendingChunkStore
	embedder Embedder
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance
func NewEmbeddingWorker(tenants TenantLister, chunks PendingChunkStore, embedder Embedder) *EmbeddingWorker {
	return &EmbeddingWorker{
		tenants:  tenants,
		chunks:   chunks,
		embedder: embedder,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	tenants, err := w.tenants.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	for _, tenant := range tenants {
		if err := w.processTenant(ctx, tenant); err != nil {
			log.Printf("Error backfilling embeddings for tenant %s: %v", tenant.ID, err)
		}
	}

	return nil
}

func (w *EmbeddingWorker) processTenant(ctx context.Context, tenant *domain.Tenant) error {
	pending, err := w.chunks.ListPendingEmbeddings(ctx, tenant, BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending chunks: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	log.Printf("Backfilling %d pending embeddings for tenant %s", len(pending), tenant.ID)

	for _, chunk := range pending {
		embedding, err := w.embedder.GetOrCompute(ctx, chunk.Text)
		if err != nil {
			// Leave the chunk pending; the next poll retries it.
			log.Printf("Embedding failed for chunk %s: %v", chunk.ID, err)
			continue
		}

		if err := w.chunks.SetEmbedding(ctx, tenant, chunk.ID, embedding); err != nil {
			log.Printf("Failed to store embedding for chunk %s: %v", chunk.ID, err)
		}
	}

	return nil
}
