package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/counsel-labs/lexrag/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRagService is a mock implementation of RagService
type MockRagService struct {
	mock.Mock
}

func (m *MockRagService) Answer(ctx context.Context, tenant *domain.Tenant, input service.RagInput) (*service.RagAnswer, error) {
	args := m.Called(ctx, tenant, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RagAnswer), args.Error(1)
}

func TestRagHandler_RagSearch(t *testing.T) {
	svc := new(MockRagService)
	handler := NewRagHandler(svc)

	svc.On("Answer", mock.Anything, mock.Anything, mock.MatchedBy(func(input service.RagInput) bool {
		// Defaults applied at the API boundary.
		return input.QueryText == "What is the notice period?" &&
			input.NResults == 5 &&
			input.MaxTokens == 1000 &&
			input.MinSimilarity == 0.7
	})).Return(&service.RagAnswer{
		Answer: "30 days. [Lease Agreement](source:lease.txt)",
		SourceDocuments: []*service.SourceDocument{
			{Content: "Lease Agreement", Metadata: map[string]any{"filename": "lease.txt"}, Similarity: 0.9},
		},
		ConversationID: "conv-1",
		Usage:          &service.UsageInfo{InputTokens: 200, OutputTokens: 50, TotalTokens: 250, Cost: 0.0035},
	}, nil)

	req := authedRequest(t, http.MethodPost, "/api/rag-search", RagRequest{Query: "What is the notice period?"})
	rec := httptest.NewRecorder()
	handler.RagSearch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RagResponse
	decodeData(t, rec, &resp)
	assert.Contains(t, resp.Answer, "30 days")
	assert.Equal(t, "conv-1", resp.ConversationID)
	assert.False(t, resp.Cached)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 250, resp.Usage.TotalTokens)
	require.Len(t, resp.SourceDocuments, 1)
	assert.Empty(t, rec.Header().Get("X-Cost-Warning"))
}

func TestRagHandler_RagSearch_CostWarningHeader(t *testing.T) {
	svc := new(MockRagService)
	handler := NewRagHandler(svc)

	svc.On("Answer", mock.Anything, mock.Anything, mock.Anything).Return(&service.RagAnswer{
		Answer:          "answer",
		SourceDocuments: []*service.SourceDocument{},
		ConversationID:  "conv-1",
		CostWarning:     true,
	}, nil)

	req := authedRequest(t, http.MethodPost, "/api/rag-search", RagRequest{Query: "expensive question"})
	rec := httptest.NewRecorder()
	handler.RagSearch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Cost-Warning"))
}

func TestRagHandler_RagSearch_QuotaExceeded(t *testing.T) {
	svc := new(MockRagService)
	handler := NewRagHandler(svc)

	svc.On("Answer", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrCodeQuotaExceeded, "Monthly budget of $30.00 exceeded ($31.70 used)"))

	req := authedRequest(t, http.MethodPost, "/api/rag-search", RagRequest{Query: "blocked"})
	rec := httptest.NewRecorder()
	handler.RagSearch(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Monthly budget")
}

func TestRagHandler_RagSearch_UpstreamFailure(t *testing.T) {
	svc := new(MockRagService)
	handler := NewRagHandler(svc)

	svc.On("Answer", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrCodeUpstreamFailure, "generative service call failed"))

	req := authedRequest(t, http.MethodPost, "/api/rag-search", RagRequest{Query: "question"})
	rec := httptest.NewRecorder()
	handler.RagSearch(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRagHandler_RagSearch_CachedResponse(t *testing.T) {
	svc := new(MockRagService)
	handler := NewRagHandler(svc)

	svc.On("Answer", mock.Anything, mock.Anything, mock.Anything).Return(&service.RagAnswer{
		Answer:          "cached answer",
		SourceDocuments: []*service.SourceDocument{},
		ConversationID:  "conv-2",
		Cached:          true,
	}, nil)

	req := authedRequest(t, http.MethodPost, "/api/rag-search", RagRequest{Query: "repeat"})
	rec := httptest.NewRecorder()
	handler.RagSearch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RagResponse
	decodeData(t, rec, &resp)
	assert.True(t, resp.Cached)
}

func TestRagHandler_RagSearch_Unauthorized(t *testing.T) {
	handler := NewRagHandler(new(MockRagService))

	req := httptest.NewRequest(http.MethodPost, "/api/rag-search", bytes.NewBufferString(`{"query":"x"}`))
	rec := httptest.NewRecorder()
	handler.RagSearch(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
