package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk score routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/scores", func(r chi.Router) {
		r.Get("/", h.HandleGetScores)
		r.Post("/refresh", h.HandleRefresh)

		r.Route("/{symbol}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetScore(w, r, chi.URLParam(r, "symbol"))
			})
			r.Get("/attribution", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetAttribution(w, r, chi.URLParam(r, "symbol"))
			})
		})
	})
}
