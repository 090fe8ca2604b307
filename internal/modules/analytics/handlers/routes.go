package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all analytics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/correlation", h.HandleGetCorrelation)
		r.Get("/var/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetAssetVaR(w, r, chi.URLParam(r, "symbol"))
		})
		r.Post("/portfolio/var", h.HandlePortfolioVaR)
		r.Post("/montecarlo", h.HandleMonteCarlo)
		r.Post("/optimize", h.HandleOptimize)
	})
}
