package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/riskcore/internal/domain"
)

// minVaRObservations is the smallest return sample historical VaR accepts.
const minVaRObservations = 30

// VaRResult holds historical Value-at-Risk and Expected Shortfall for one
// return series. VaR and ES are return-space values (negative for losses),
// already scaled to the requested horizon.
type VaRResult struct {
	VaR          float64 `json:"var"`
	ES           float64 `json:"expected_shortfall"`
	Confidence   float64 `json:"confidence"`
	HorizonDays  int     `json:"horizon_days"`
	Observations int     `json:"observations"`
}

// HistoricalVaR computes the empirical (1-c)-quantile of the daily return
// series with linear interpolation between order statistics, the ES as the
// mean of returns at or below that quantile, and scales both by the square
// root of the horizon.
func HistoricalVaR(returns []float64, confidence float64, horizonDays int) (*VaRResult, error) {
	if confidence <= 0 || confidence >= 1 {
		return nil, domain.NewInvalidConfiguration("VaR confidence must be in (0,1)")
	}
	if horizonDays < 1 {
		return nil, domain.NewInvalidConfiguration("VaR horizon must be at least 1 day")
	}
	if len(returns) < minVaRObservations {
		return nil, domain.NewInsufficientHistory("not enough returns for historical VaR", minVaRObservations, len(returns))
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	dailyVaR := stat.Quantile(1-confidence, stat.LinInterp, sorted, nil)

	var tailSum float64
	var tailCount int
	for _, r := range sorted {
		if r > dailyVaR {
			break
		}
		tailSum += r
		tailCount++
	}
	dailyES := dailyVaR
	if tailCount > 0 {
		dailyES = tailSum / float64(tailCount)
	}

	scale := math.Sqrt(float64(horizonDays))
	return &VaRResult{
		VaR:          dailyVaR * scale,
		ES:           dailyES * scale,
		Confidence:   confidence,
		HorizonDays:  horizonDays,
		Observations: len(returns),
	}, nil
}

// PortfolioVaRResult extends VaR to a weighted portfolio, with per-symbol
// standalone VaR and the diversification benefit of holding them together.
type PortfolioVaRResult struct {
	Portfolio            VaRResult            `json:"portfolio"`
	PerSymbol            map[string]VaRResult `json:"per_symbol"`
	Weights              map[string]float64   `json:"weights"`
	DiversificationGain  float64              `json:"diversification_benefit"`
	WeightedStandaloneVaR float64             `json:"weighted_standalone_var"`
}

// PortfolioVaR computes VaR for the weighted portfolio return series plus
// each component on its own. The diversification benefit is
// 1 - |portfolio VaR| / sum_i w_i * |VaR_i|: the share of standalone risk
// that co-movement diversifies away.
func PortfolioVaR(symbols []string, returns map[string][]float64, weights map[string]float64, confidence float64, horizonDays int) (*PortfolioVaRResult, error) {
	if len(symbols) == 0 {
		return nil, domain.NewInvalidConfiguration("portfolio VaR needs at least one symbol")
	}
	var weightSum float64
	for _, sym := range symbols {
		w, ok := weights[sym]
		if !ok {
			return nil, domain.NewInvalidConfiguration("missing weight for " + sym)
		}
		if w < 0 {
			return nil, domain.NewInvalidConfiguration("portfolio VaR is long-only, negative weight for " + sym)
		}
		weightSum += w
	}
	if math.Abs(weightSum-1.0) > 1e-6 {
		return nil, domain.NewInvalidConfiguration("portfolio weights must sum to 1.0")
	}

	obs := len(returns[symbols[0]])
	portReturns := make([]float64, obs)
	for _, sym := range symbols {
		r := returns[sym]
		if len(r) != obs {
			return nil, domain.NewInvalidConfiguration("return series for " + sym + " not aligned")
		}
		w := weights[sym]
		for i, v := range r {
			portReturns[i] += w * v
		}
	}

	portVaR, err := HistoricalVaR(portReturns, confidence, horizonDays)
	if err != nil {
		return nil, err
	}

	perSymbol := make(map[string]VaRResult, len(symbols))
	var weightedStandalone float64
	for _, sym := range symbols {
		r, err := HistoricalVaR(returns[sym], confidence, horizonDays)
		if err != nil {
			return nil, err
		}
		perSymbol[sym] = *r
		weightedStandalone += weights[sym] * math.Abs(r.VaR)
	}

	benefit := 0.0
	if weightedStandalone > 0 {
		benefit = 1 - math.Abs(portVaR.VaR)/weightedStandalone
	}

	return &PortfolioVaRResult{
		Portfolio:             *portVaR,
		PerSymbol:             perSymbol,
		Weights:               weights,
		DiversificationGain:   benefit,
		WeightedStandaloneVaR: weightedStandalone,
	}, nil
}
