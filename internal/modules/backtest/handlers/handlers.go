// Package handlers provides HTTP handlers for backtest operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/internal/modules/backtest"
)

// Handler handles backtest HTTP requests
type Handler struct {
	engine *backtest.Engine
	log    zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(engine *backtest.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleRun handles POST /api/backtest/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req backtest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.engine.Run(req)
	if err != nil {
		h.respondError(w, err, "Backtest run failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleHistorical handles GET /api/backtest/historical/{symbol}
func (h *Handler) HandleHistorical(w http.ResponseWriter, r *http.Request, symbol string) {
	from := r.URL.Query().Get("start")
	to := r.URL.Query().Get("end")

	report, err := h.engine.Analyze(symbol, from, to)
	if err != nil {
		h.respondError(w, err, "Historical analysis failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
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
