package service

import (
	"context"
	"sync"

	"github.com/counsel-labs/lexrag/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingService fronts the embedding client with a cache keyed by the
// exact input text, so repeated queries and re-ingested chunks skip the
// upstream call. Only successful results are cached; a client error
// propagates and leaves no cache entry behind.
type EmbeddingService struct {
	client EmbeddingClient

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewEmbeddingService creates a new EmbeddingService instance
func NewEmbeddingService(client EmbeddingClient) *EmbeddingService {
	return &EmbeddingService{
		client: client,
		cache:  make(map[string][]float32),
	}
}

// GetOrCompute returns the embedding for text, calling the upstream
// client at most once per distinct input.
func (s *EmbeddingService) GetOrCompute(ctx context.Context, text string) ([]float32, error) {
	s.mu.RLock()
	embedding, ok := s.cache[text]
	s.mu.RUnlock()
	if ok {
		return embedding, nil
	}

	embedding, err := s.client.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamFailure, "embedding service call failed", err)
	}

	s.mu.Lock()
	s.cache[text] = embedding
	s.mu.Unlock()

	return embedding, nil
}

// CacheSize returns the number of cached embeddings.
func (s *EmbeddingService) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
