package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backtest", func(r chi.Router) {
		r.Post("/run", h.HandleRun)
		r.Get("/historical/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleHistorical(w, r, chi.URLParam(r, "symbol"))
		})
	})
}
