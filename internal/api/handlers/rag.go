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

const (
	defaultRagResults   = 5
	defaultRagMaxTokens = 1000
)

// costWarningHeader flags responses whose estimated cost crossed the
// tenant's warning threshold. The request still succeeds.
const costWarningHeader = "X-Cost-Warning"

type RagService interface {
	Answer(ctx context.Context, tenant *domain.Tenant, input service.RagInput) (*service.RagAnswer, error)
}

type RagHandler struct {
	svc RagService
}

func NewRagHandler(svc RagService) *RagHandler {
	return &RagHandler{svc: svc}
}

type RagRequest struct {
	Query          string                `json:"query"`
	Model          string                `json:"model,omitempty"`
	Temperature    float32               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	NResults       int                   `json:"n_results,omitempty"`
	MinSimilarity  *float64              `json:"min_similarity,omitempty"`
	ConversationID string                `json:"conversation_id,omitempty"`
	Messages       []service.ChatMessage `json:"messages,omitempty"`
	MetadataFilter map[string]any        `json:"metadata_filter,omitempty"`
}

type SourceDocumentResponse struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

type UsageInfoResponse struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

type RagResponse struct {
	Answer          string                    `json:"answer"`
	SourceDocuments []*SourceDocumentResponse `json:"source_documents"`
	ConversationID  string                    `json:"conversation_id"`
	Usage           *UsageInfoResponse        `json:"usage"`
	Cached          bool                      `json:"cached"`
}

// RagSearch handles POST /api/rag-search.
func (h *RagHandler) RagSearch(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	nResults := req.NResults
	if nResults <= 0 {
		nResults = defaultRagResults
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultRagMaxTokens
	}
	minSimilarity := defaultMinSimilarity
	if req.MinSimilarity != nil {
		minSimilarity = *req.MinSimilarity
	}

	answer, err := h.svc.Answer(r.Context(), tenant, service.RagInput{
		QueryText:      req.Query,
		Model:          req.Model,
		Temperature:    req.Temperature,
		MaxTokens:      maxTokens,
		NResults:       nResults,
		MinSimilarity:  minSimilarity,
		ConversationID: req.ConversationID,
		History:        req.Messages,
		MetadataFilter: req.MetadataFilter,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if answer.CostWarning {
		w.Header().Set(costWarningHeader, "true")
	}

	sources := make([]*SourceDocumentResponse, len(answer.SourceDocuments))
	for i, source := range answer.SourceDocuments {
		sources[i] = &SourceDocumentResponse{
			Content:    source.Content,
			Metadata:   source.Metadata,
			Similarity: source.Similarity,
		}
	}

	var usage *UsageInfoResponse
	if answer.Usage != nil {
		usage = &UsageInfoResponse{
			InputTokens:  answer.Usage.InputTokens,
			OutputTokens: answer.Usage.OutputTokens,
			TotalTokens:  answer.Usage.TotalTokens,
			Cost:         answer.Usage.Cost,
		}
	}

	api.Success(w, http.StatusOK, RagResponse{
		Answer:          answer.Answer,
		SourceDocuments: sources,
		ConversationID:  answer.ConversationID,
		Usage:           usage,
		Cached:          answer.Cached,
	})
}
