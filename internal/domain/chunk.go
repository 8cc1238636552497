package domain

import (
	"fmt"
	"time"
)

// Chunk represents a bounded span of a source document's text, the atomic
// unit of retrieval. Chunks are immutable once stored; re-ingesting the
// same id overwrites the previous content.
type Chunk struct {
	ID             string
	SourceDocument string
	Ordinal        int
	Text           string
	Metadata       map[string]any
	Embedding      []float32
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChunkID derives the deterministic chunk identifier for a document and
// 1-based ordinal. The format is load-bearing: ingestion, upsert and the
// chunked-document lookup all rely on it.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, ordinal)
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if c.SourceDocument == "" {
		return fmt.Errorf("chunk SourceDocument is required")
	}

	if c.Text == "" {
		return fmt.Errorf("chunk Text is required")
	}

	return nil
}

// ChunkMatch pairs a stored chunk with its raw cosine distance from the
// vector index.
type ChunkMatch struct {
	Chunk    Chunk
	Distance float64
}

// SearchResult is a ranked retrieval hit. Rank is the 1-based position
// after threshold filtering, preserving the vector index's own ordering.
type SearchResult struct {
	ChunkText  string
	Metadata   map[string]any
	Source     string
	Similarity float64
	Rank       int
}
