// Package api exposes the research pipeline over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/ayush/truth-engine/internal/middleware"
)

// NewRouter wires the routes and middleware.
func NewRouter(logger zerolog.Logger, h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-Run-ID", "X-Report-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", h.Analyze)

		r.Get("/reports", h.ListReports)
		r.Get("/reports/{id}", h.GetReport)
		r.Get("/reports/{id}/export", h.ExportReport)
		r.Delete("/reports/{id}", h.DeleteReport)

		r.Get("/runs", h.ListRuns)
	})

	return r
}
