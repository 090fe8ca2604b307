package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/internal/workers"
	"github.com/quantlab/riskcore/pkg/logger"
)

// minAlignedObservations is the smallest common-date return sample the
// multi-asset computations accept.
const minAlignedObservations = 30

// DataSource is what the analytics service needs from the bar store.
type DataSource interface {
	BarsBetween(symbol, from, to string) (domain.Series, error)
}

// Service wires the analytics computations to the bar store and the
// calculation cache.
type Service struct {
	data         DataSource
	cache        *Cache
	optimizer    *Optimizer
	pool         *workers.Pool
	riskFreeRate float64
	log          zerolog.Logger
}

func NewService(data DataSource, cache *Cache, pool *workers.Pool, riskFreeRate float64, log zerolog.Logger) *Service {
	l := logger.Component(log, "analytics")
	return &Service{
		data:         data,
		cache:        cache,
		optimizer:    NewOptimizer(l),
		pool:         pool,
		riskFreeRate: riskFreeRate,
		log:          l,
	}
}

// loadUniverse fetches each symbol's trailing bars. The window is padded so
// lookbackDays trading days fit inside the calendar range.
func (s *Service) loadUniverse(symbols []string, lookbackDays int) ([]domain.Series, error) {
	if len(symbols) == 0 {
		return nil, domain.NewInvalidConfiguration("no symbols requested")
	}
	if lookbackDays <= 1 {
		return nil, domain.NewInvalidConfiguration("lookback must be greater than 1 day")
	}
	from := time.Now().AddDate(0, 0, -lookbackDays*2).Format("2006-01-02")

	universe := make([]domain.Series, 0, len(symbols))
	for _, sym := range symbols {
		series, err := s.data.BarsBetween(sym, from, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load bars for %s: %w", sym, err)
		}
		universe = append(universe, trimToLookback(series, lookbackDays))
	}
	return universe, nil
}

// trimToLookback keeps the last lookbackDays+1 bars so the series yields
// lookbackDays returns.
func trimToLookback(series domain.Series, lookbackDays int) domain.Series {
	keep := lookbackDays + 1
	if series.Len() > keep {
		series.Bars = series.Bars[series.Len()-keep:]
	}
	return series
}

// alignedReturns intersects the universe on common dates and returns simple
// returns plus the shared dates.
func (s *Service) alignedReturns(symbols []string, lookbackDays int) (map[string][]float64, []string, error) {
	universe, err := s.loadUniverse(symbols, lookbackDays)
	if err != nil {
		return nil, nil, err
	}
	returns, dates := domain.AlignedReturns(universe)
	if len(dates) < minAlignedObservations {
		return nil, nil, domain.NewInsufficientHistory(
			"not enough overlapping history across the requested symbols",
			minAlignedObservations, len(dates))
	}
	return returns, dates, nil
}

// Correlation computes the Pearson correlation matrix of daily log returns
// over the trailing window.
func (s *Service) Correlation(symbols []string, lookbackDays int) (*CorrelationResult, error) {
	simple, _, err := s.alignedReturns(symbols, lookbackDays)
	if err != nil {
		return nil, err
	}
	logReturns := make(map[string][]float64, len(simple))
	for sym, r := range simple {
		lr := make([]float64, len(r))
		for i, v := range r {
			lr[i] = math.Log1p(v)
		}
		logReturns[sym] = lr
	}
	return BuildCorrelation(symbols, logReturns)
}

// AssetVaR computes historical VaR/ES for a single symbol.
func (s *Service) AssetVaR(symbol string, confidence float64, horizonDays, lookbackDays int) (*VaRResult, error) {
	universe, err := s.loadUniverse([]string{symbol}, lookbackDays)
	if err != nil {
		return nil, err
	}
	return HistoricalVaR(universe[0].SimpleReturns(), confidence, horizonDays)
}

// PortfolioRisk computes the weighted portfolio VaR report over the common
// history of the weighted symbols.
func (s *Service) PortfolioRisk(weights map[string]float64, confidence float64, horizonDays, lookbackDays int) (*PortfolioVaRResult, error) {
	symbols := make([]string, 0, len(weights))
	for sym := range weights {
		symbols = append(symbols, sym)
	}
	returns, _, err := s.alignedReturns(symbols, lookbackDays)
	if err != nil {
		return nil, err
	}
	return PortfolioVaR(symbols, returns, weights, confidence, horizonDays)
}

// MonteCarlo simulates price paths for one symbol.
func (s *Service) MonteCarlo(ctx context.Context, symbol string, cfg MonteCarloConfig, lookbackDays int) (*MonteCarloResult, error) {
	universe, err := s.loadUniverse([]string{symbol}, lookbackDays)
	if err != nil {
		return nil, err
	}
	return SimulateGBM(ctx, universe[0], cfg, s.pool)
}

// OptimizationReport bundles the optimized portfolios, the frontier and the
// covariance metadata for one universe.
type OptimizationReport struct {
	MinVariance  *Allocation     `json:"min_variance"`
	MaxSharpe    *Allocation     `json:"max_sharpe"`
	EqualWeight  *Allocation     `json:"equal_weight"`
	Frontier     []FrontierPoint `json:"efficient_frontier"`
	RiskFreeRate float64         `json:"risk_free_rate"`
	Regularized  bool            `json:"covariance_regularized"`
	Observations int             `json:"observations"`
}

// Optimize runs the full mean-variance suite over the requested universe.
// Expected returns are annualized mean daily returns; covariance is cached
// by universe fingerprint.
func (s *Service) Optimize(symbols []string, lookbackDays, frontierPoints int) (*OptimizationReport, error) {
	returns, dates, err := s.alignedReturns(symbols, lookbackDays)
	if err != nil {
		return nil, err
	}

	mu := make([]float64, len(symbols))
	for i, sym := range symbols {
		mu[i] = stat.Mean(returns[sym], nil) * domain.TradingDaysPerYear
	}

	key := CovarianceKey(symbols, lookbackDays, dates[len(dates)-1])
	cov := s.cache.GetCovariance(key)
	if cov == nil {
		cov, err = BuildCovariance(symbols, returns)
		if err != nil {
			return nil, err
		}
		s.cache.PutCovariance(key, cov)
	}
	sigma := cov.Sym()

	minVar, err := s.optimizer.MinVariance(symbols, mu, sigma, s.riskFreeRate)
	if err != nil {
		return nil, err
	}
	maxSharpe, err := s.optimizer.MaxSharpe(symbols, mu, sigma, s.riskFreeRate)
	if err != nil {
		return nil, err
	}
	frontier, err := s.optimizer.Frontier(symbols, mu, sigma, frontierPoints, s.riskFreeRate)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("symbols", len(symbols)).
		Int("frontier_points", len(frontier)).
		Bool("regularized", cov.Regularized).
		Msg("Optimization complete")

	return &OptimizationReport{
		MinVariance:  minVar,
		MaxSharpe:    maxSharpe,
		EqualWeight:  EqualWeight(symbols, mu, sigma, s.riskFreeRate),
		Frontier:     frontier,
		RiskFreeRate: s.riskFreeRate,
		Regularized:  cov.Regularized,
		Observations: cov.Observations,
	}, nil
}
