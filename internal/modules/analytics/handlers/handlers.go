// Package handlers provides HTTP handlers for portfolio analytics operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlab/riskcore/internal/config"
	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/internal/modules/analytics"
)

const defaultFrontierPoints = 20

// Handler handles analytics HTTP requests
type Handler struct {
	service  *analytics.Service
	defaults *config.Config
	log      zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, defaults *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		defaults: defaults,
		log:      log.With().Str("handler", "analytics").Logger(),
	}
}

// HandleGetCorrelation handles GET /api/analytics/correlation?symbols=A,B,C
func (h *Handler) HandleGetCorrelation(w http.ResponseWriter, r *http.Request) {
	symbols := splitSymbols(r.URL.Query().Get("symbols"))
	lookback := h.intParam(r, "lookback", h.defaults.LookbackDays)

	result, err := h.service.Correlation(symbols, lookback)
	if err != nil {
		h.respondError(w, err, "Failed to compute correlation")
		return
	}
	h.writeData(w, result, map[string]interface{}{"lookback_days": lookback})
}

// HandleGetAssetVaR handles GET /api/analytics/var/{symbol}
func (h *Handler) HandleGetAssetVaR(w http.ResponseWriter, r *http.Request, symbol string) {
	confidence := h.floatParam(r, "confidence", h.defaults.VaRConfidence)
	horizon := h.intParam(r, "horizon", 1)
	lookback := h.intParam(r, "lookback", h.defaults.LookbackDays)

	result, err := h.service.AssetVaR(symbol, confidence, horizon, lookback)
	if err != nil {
		h.respondError(w, err, "Failed to compute VaR")
		return
	}
	h.writeData(w, result, map[string]interface{}{
		"symbol":        symbol,
		"lookback_days": lookback,
	})
}

type portfolioVaRRequest struct {
	Weights      map[string]float64 `json:"weights"`
	Confidence   float64            `json:"confidence"`
	HorizonDays  int                `json:"horizon_days"`
	LookbackDays int                `json:"lookback_days"`
}

// HandlePortfolioVaR handles POST /api/analytics/portfolio/var
func (h *Handler) HandlePortfolioVaR(w http.ResponseWriter, r *http.Request) {
	var req portfolioVaRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Confidence == 0 {
		req.Confidence = h.defaults.VaRConfidence
	}
	if req.HorizonDays == 0 {
		req.HorizonDays = 1
	}
	if req.LookbackDays == 0 {
		req.LookbackDays = h.defaults.LookbackDays
	}

	result, err := h.service.PortfolioRisk(req.Weights, req.Confidence, req.HorizonDays, req.LookbackDays)
	if err != nil {
		h.respondError(w, err, "Failed to compute portfolio VaR")
		return
	}
	h.writeData(w, result, map[string]interface{}{"lookback_days": req.LookbackDays})
}

type monteCarloRequest struct {
	Symbol       string `json:"symbol"`
	Paths        int    `json:"paths"`
	HorizonDays  int    `json:"horizon_days"`
	Seed         uint64 `json:"seed"`
	LookbackDays int    `json:"lookback_days"`
}

// HandleMonteCarlo handles POST /api/analytics/montecarlo
func (h *Handler) HandleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req monteCarloRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Paths == 0 {
		req.Paths = h.defaults.MonteCarloPaths
	}
	if req.HorizonDays == 0 {
		req.HorizonDays = h.defaults.MonteCarloDays
	}
	if req.LookbackDays == 0 {
		req.LookbackDays = h.defaults.LookbackDays
	}

	cfg := analytics.MonteCarloConfig{
		Paths:       req.Paths,
		HorizonDays: req.HorizonDays,
		Seed:        req.Seed,
	}
	result, err := h.service.MonteCarlo(r.Context(), req.Symbol, cfg, req.LookbackDays)
	if err != nil {
		h.respondError(w, err, "Monte Carlo simulation failed")
		return
	}
	h.writeData(w, result, map[string]interface{}{
		"symbol": req.Symbol,
		"paths":  req.Paths,
	})
}

type optimizeRequest struct {
	Symbols        []string `json:"symbols"`
	LookbackDays   int      `json:"lookback_days"`
	FrontierPoints int      `json:"frontier_points"`
}

// HandleOptimize handles POST /api/analytics/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.LookbackDays == 0 {
		req.LookbackDays = h.defaults.LookbackDays
	}
	if req.FrontierPoints == 0 {
		req.FrontierPoints = defaultFrontierPoints
	}

	report, err := h.service.Optimize(req.Symbols, req.LookbackDays, req.FrontierPoints)
	if err != nil {
		h.respondError(w, err, "Optimization failed")
		return
	}
	h.writeData(w, report, map[string]interface{}{"lookback_days": req.LookbackDays})
}

func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (h *Handler) intParam(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func (h *Handler) floatParam(r *http.Request, name string, fallback float64) float64 {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return fallback
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

func (h *Handler) writeData(w http.ResponseWriter, data interface{}, metadata map[string]interface{}) {
	metadata["timestamp"] = time.Now().Format(time.RFC3339)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     data,
		"metadata": metadata,
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
