package handlers

import (
	"context"
	"net/http"

	"github.com/counsel-labs/lexrag/internal/api"
	"github.com/counsel-labs/lexrag/internal/api/middleware"
	"github.com/counsel-labs/lexrag/internal/domain"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type ChunkCounter interface {
	Count(ctx context.Context, tenant *domain.Tenant) (int, error)
	CountPendingEmbeddings(ctx context.Context, tenant *domain.Tenant) (int, error)
}

type HealthHandler struct {
	db     Pinger
	chunks ChunkCounter
}

func NewHealthHandler(db Pinger, chunks ChunkCounter) *HealthHandler {
	return &HealthHandler{
		db:     db,
		chunks: chunks,
	}
}

type HealthResponse struct {
	Status            string `json:"status"`
	Database          string `json:"database"`
	ChunkCount        int    `json:"chunk_count"`
	PendingEmbeddings int    `json:"pending_embeddings"`
}

// Health handles GET /api/health: liveness plus vector-store
// connectivity and the tenant's stored chunk count.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.db.Ping(r.Context()); err != nil {
		api.JSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "degraded",
			Database: "unavailable",
		})
		return
	}

	count, err := h.chunks.Count(r.Context(), tenant)
	if err != nil {
		api.JSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "degraded",
			Database: "ok",
		})
		return
	}

	pending, err := h.chunks.CountPendingEmbeddings(r.Context(), tenant)
	if err != nil {
		api.JSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "degraded",
			Database: "ok",
		})
		return
	}

	api.JSON(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		Database:          "ok",
		ChunkCount:        count,
		PendingEmbeddings: pending,
	})
}
