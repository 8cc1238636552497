package server

import (
	"net/http"

	"github.com/counsel-labs/lexrag/internal/api"
	"github.com/counsel-labs/lexrag/internal/api/handlers"
	"github.com/counsel-labs/lexrag/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	Authenticator   middleware.Authenticator
	SearchHandler   *handlers.SearchHandler
	RagHandler      *handlers.RagHandler
	DocumentHandler *handlers.DocumentHandler
	HealthHandler   *handlers.HealthHandler
	AdminHandler    *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.Authenticator))

		r.Post("/search", cfg.SearchHandler.Search)
		r.Post("/rag-search", cfg.RagHandler.RagSearch)
		r.Get("/health", cfg.HealthHandler.Health)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Ingest)
			r.Get("/{document_id}", cfg.DocumentHandler.Get)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.Authenticator))
		r.Use(middleware.RequireAdmin)

		r.Get("/usage", cfg.AdminHandler.Usage)
		r.Get("/quota", cfg.AdminHandler.GetQuota)
		r.Post("/quota", cfg.AdminHandler.UpdateQuota)
		r.Post("/reset-usage", cfg.AdminHandler.ResetUsage)
		r.Get("/dashboard", cfg.AdminHandler.Dashboard)
	})

	return r
}
