// Package handlers provides HTTP handlers for risk score operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/internal/modules/scoring"
)

const defaultAttributionTopN = 3

// Handler handles risk score HTTP requests
type Handler struct {
	service *scoring.Service
	log     zerolog.Logger
}

// NewHandler creates a new risk score handler
func NewHandler(service *scoring.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "scoring").Logger(),
	}
}

// HandleGetScores handles GET /api/scores
func (h *Handler) HandleGetScores(w http.ResponseWriter, r *http.Request) {
	results, updatedAt, ok := h.service.Latest()
	if !ok {
		http.Error(w, "No score snapshot available yet", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": results,
		"metadata": map[string]interface{}{
			"updated_at": updatedAt.Format(time.RFC3339),
			"count":      len(results),
		},
	})
}

// HandleGetScore handles GET /api/scores/{symbol}
func (h *Handler) HandleGetScore(w http.ResponseWriter, r *http.Request, symbol string) {
	results, updatedAt, ok := h.service.Latest()
	if !ok {
		http.Error(w, "No score snapshot available yet", http.StatusServiceUnavailable)
		return
	}
	for _, res := range results {
		if res.Symbol == symbol {
			h.writeJSON(w, http.StatusOK, map[string]interface{}{
				"data": res,
				"metadata": map[string]interface{}{
					"updated_at": updatedAt.Format(time.RFC3339),
				},
			})
			return
		}
	}
	http.Error(w, "Symbol not scored: "+symbol, http.StatusNotFound)
}

// HandleGetAttribution handles GET /api/scores/{symbol}/attribution
func (h *Handler) HandleGetAttribution(w http.ResponseWriter, r *http.Request, symbol string) {
	topN := defaultAttributionTopN
	if raw := r.URL.Query().Get("top"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			topN = n
		}
	}

	attr, err := h.service.Attribution(symbol, topN)
	if err != nil {
		h.respondError(w, err, "Failed to compute attribution")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": attr,
		"metadata": map[string]interface{}{
			"symbol": symbol,
			"top_n":  topN,
		},
	})
}

// HandleRefresh handles POST /api/scores/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.respondError(w, err, "Score refresh failed")
		return
	}
	results, updatedAt, _ := h.service.Latest()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"scored":     len(results),
			"updated_at": updatedAt.Format(time.RFC3339),
		},
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error, msg string) {
	h.log.Error().Err(err).Msg(msg)
	http.Error(w, err.Error(), statusFor(err))
}

// statusFor maps core error kinds to HTTP status codes.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidConfiguration, domain.KindUnknownStrategy:
		return http.StatusBadRequest
	case domain.KindInsufficientHistory, domain.KindInfeasibleTarget:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
