package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tpelligrinomid/midrag/internal/api"
	"github.com/tpelligrinomid/midrag/internal/api/handlers"
	"github.com/tpelligrinomid/midrag/internal/api/middleware"
)

type RouterConfig struct {
	IngestHandler *handlers.IngestHandler
	SearchHandler *handlers.SearchHandler
	AskHandler    *handlers.AskHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.Tenant)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/ingest", func(r chi.Router) {
		r.Post("/", cfg.IngestHandler.Ingest)
		r.Get("/jobs/{jobID}", cfg.IngestHandler.GetJob)
	})

	r.Post("/search", cfg.SearchHandler.Search)
	r.Post("/ask", cfg.AskHandler.Ask)

	return r
}
