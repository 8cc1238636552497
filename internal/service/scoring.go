package service

import "github.com/counsel-labs/lexrag/internal/domain"

// NormalizeDistance converts a raw cosine distance into a similarity
// score. The formula maps distance 0 to similarity 1.0 and distance 2 to
// 0.0. Existing similarity thresholds depend on this exact mapping, so
// it must not change.
func NormalizeDistance(distance float64) float64 {
	return 1 - (distance / 2)
}

// FilterAndRank drops matches whose similarity falls below minSimilarity
// and assigns 1-based ranks to the survivors. Rank reflects the vector
// index's own ordering, not a post-hoc sort by similarity.
func FilterAndRank(matches []*domain.ChunkMatch, minSimilarity float64) []*domain.SearchResult {
	results := make([]*domain.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m == nil {
			continue
		}
		similarity := NormalizeDistance(m.Distance)
		if similarity < minSimilarity {
			continue
		}
		results = append(results, &domain.SearchResult{
			ChunkText:  m.Chunk.Text,
			Metadata:   m.Chunk.Metadata,
			Source:     m.Chunk.SourceDocument,
			Similarity: similarity,
			Rank:       len(results) + 1,
		})
	}
	return results
}
