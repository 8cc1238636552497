package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/counsel-labs/lexrag/internal/api"
	"github.com/counsel-labs/lexrag/internal/api/middleware"
	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/counsel-labs/lexrag/internal/service"
)

// Request defaults mirroring the documented API contract.
const (
	defaultSearchResults = 3
	defaultMinSimilarity = 0.7
)

type SearchService interface {
	Search(ctx context.Context, tenant *domain.Tenant, input service.SearchInput) ([]*domain.SearchResult, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	QueryText      string         `json:"query_text"`
	NResults       int            `json:"n_results,omitempty"`
	MinSimilarity  *float64       `json:"min_similarity,omitempty"`
	MetadataFilter map[string]any `json:"metadata_filter,omitempty"`
}

type SearchResultResponse struct {
	Chunk      string         `json:"chunk"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
	Rank       int            `json:"rank"`
}

type SearchResponse struct {
	Results    []*SearchResultResponse `json:"results"`
	TotalFound int                     `json:"total_found"`
}

// Search handles POST /api/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	nResults := req.NResults
	if nResults <= 0 {
		nResults = defaultSearchResults
	}
	minSimilarity := defaultMinSimilarity
	if req.MinSimilarity != nil {
		minSimilarity = *req.MinSimilarity
	}

	results, err := h.svc.Search(r.Context(), tenant, service.SearchInput{
		QueryText:      req.QueryText,
		NResults:       nResults,
		MinSimilarity:  minSimilarity,
		MetadataFilter: req.MetadataFilter,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SearchResultResponse, len(results))
	for i, result := range results {
		responses[i] = &SearchResultResponse{
			Chunk:      result.ChunkText,
			Metadata:   result.Metadata,
			Similarity: result.Similarity,
			Rank:       result.Rank,
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{
		Results:    responses,
		TotalFound: len(responses),
	})
}
