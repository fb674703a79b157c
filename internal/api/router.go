package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ramonehamilton/gammatrain/internal/api/handlers"
	"github.com/ramonehamilton/gammatrain/internal/api/response"
	"github.com/ramonehamilton/gammatrain/internal/version"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	s.router.Route("/api/v1", func(r chi.Router) {
		modelHandler := handlers.NewModelHandler(s.source, s.metrics)
		r.Post("/score", modelHandler.Score)
		r.Get("/model", modelHandler.GetModel)
		r.Get("/features/{name}", modelHandler.GetFeature)
	})
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	m := s.source.Current()
	if m == nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "no model",
			"service": "gammatrain",
		})
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"service":    "gammatrain",
		"version":    version.String(),
		"features":   m.Registry().Size(),
		"iterations": m.Iterations(),
	})
}
