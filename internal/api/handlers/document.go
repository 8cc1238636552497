package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/counsel-labs/lexrag/internal/api"
	"github.com/counsel-labs/lexrag/internal/api/middleware"
	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/counsel-labs/lexrag/internal/service"
	"github.com/go-chi/chi/v5"
)

type DocumentResolver interface {
	Resolve(ctx context.Context, tenant *domain.Tenant, documentID string) (*service.DocumentContent, error)
}

type DocumentIngester interface {
	IngestDocument(ctx context.Context, tenant *domain.Tenant, documentID, content string, metadata map[string]any) (*service.IngestResult, error)
}

type DocumentHandler struct {
	locator  DocumentResolver
	ingester DocumentIngester
}

func NewDocumentHandler(locator DocumentResolver, ingester DocumentIngester) *DocumentHandler {
	return &DocumentHandler{
		locator:  locator,
		ingester: ingester,
	}
}

type DocumentResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Content    string `json:"content"`
	Location   string `json:"location"`
}

type IngestRequest struct {
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type IngestResponse struct {
	DocumentID        string `json:"document_id"`
	ChunkCount        int    `json:"chunk_count"`
	PendingEmbeddings int    `json:"pending_embeddings"`
}

// Get handles GET /api/documents/{document_id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	documentID := chi.URLParam(r, "document_id")
	if decoded, err := url.PathUnescape(documentID); err == nil {
		documentID = decoded
	}

	doc, err := h.locator.Resolve(r.Context(), tenant, documentID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DocumentResponse{
		DocumentID: doc.DocumentID,
		Filename:   doc.Filename,
		Content:    string(doc.Content),
		Location:   doc.Location,
	})
}

// Ingest handles POST /api/documents.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.ingester.IngestDocument(r.Context(), tenant, req.DocumentID, req.Content, req.Metadata)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, IngestResponse{
		DocumentID:        result.DocumentID,
		ChunkCount:        result.ChunkCount,
		PendingEmbeddings: result.PendingEmbeddings,
	})
}
