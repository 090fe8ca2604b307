package backtest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/pkg/logger"
)

// DataSource is what the engine needs from the bar store.
type DataSource interface {
	BarsBetween(symbol, from, to string) (domain.Series, error)
}

// RiskProvider supplies the historical risk-score series consumed by the
// risk_based strategy.
type RiskProvider interface {
	RiskScores(symbol string) (map[string]float64, error)
}

// Engine runs backtests against stored history.
type Engine struct {
	data  DataSource
	risks RiskProvider
	log   zerolog.Logger
}

func NewEngine(data DataSource, risks RiskProvider, log zerolog.Logger) *Engine {
	return &Engine{
		data:  data,
		risks: risks,
		log:   logger.Component(log, "backtest"),
	}
}

// Run executes one backtest. Every run also computes the buy-and-hold
// benchmark over the same bars and merges it into the equity curve.
func (e *Engine) Run(req Request) (*Result, error) {
	if req.InitialCapital <= 0 {
		return nil, domain.NewInvalidConfiguration("initial capital must be positive")
	}
	req.Params.defaults()
	if err := validateParams(req.Strategy, req.Params); err != nil {
		return nil, err
	}

	series, err := e.data.BarsBetween(req.Symbol, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load bars for %s: %w", req.Symbol, err)
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}

	minBars := minimumBars(req.Strategy, req.Params)
	if series.Len() < minBars {
		return nil, domain.NewInsufficientHistory(
			"not enough history for strategy "+req.Strategy, minBars, series.Len())
	}

	dates := series.Dates()
	closes := series.Closes()

	var equity []float64
	var trades []Trade
	var maData []MAPoint

	switch req.Strategy {
	case StrategyBuyAndHold:
		equity, trades = runBuyAndHold(dates, closes, req.InitialCapital)
	case StrategyMovingAverage:
		equity, trades, maData = runMovingAverage(dates, closes, req.InitialCapital, req.Params.ShortWindow, req.Params.LongWindow)
	case StrategyRiskBased:
		scores, err := e.loadRiskScores(req.Symbol)
		if err != nil {
			return nil, err
		}
		equity, trades = runRiskBased(dates, closes, req.InitialCapital, scores, req.Params.RiskThreshold)
	case StrategyMeanReversion:
		equity, trades = runMeanReversion(dates, closes, req.InitialCapital, req.Params.Lookback, req.Params.ZEntry, req.Params.ZExit)
	default:
		return nil, domain.NewUnknownStrategy(req.Strategy)
	}

	benchEquity, _ := runBuyAndHold(dates, closes, req.InitialCapital)

	curve := make([]EquityPoint, len(dates))
	for i := range dates {
		curve[i] = EquityPoint{Date: dates[i], Equity: equity[i], Benchmark: benchEquity[i]}
	}

	metrics := computeMetrics(equity, req.InitialCapital, trades)
	metrics.BenchmarkReturn = (benchEquity[len(benchEquity)-1] - req.InitialCapital) / req.InitialCapital

	result := &Result{
		RunID:          uuid.New().String(),
		Symbol:         req.Symbol,
		Strategy:       req.Strategy,
		InitialCapital: req.InitialCapital,
		StartDate:      dates[0],
		EndDate:        dates[len(dates)-1],
		DataPoints:     len(closes),
		EquityCurve:    curve,
		Trades:         trades,
		Metrics:        metrics,
		MAData:         maData,
	}

	e.log.Info().
		Str("run_id", result.RunID).
		Str("symbol", req.Symbol).
		Str("strategy", req.Strategy).
		Int("trades", len(trades)).
		Float64("total_return", metrics.TotalReturn).
		Msg("Backtest complete")
	return result, nil
}

func (e *Engine) loadRiskScores(symbol string) (map[string]float64, error) {
	if e.risks == nil {
		return map[string]float64{}, nil
	}
	scores, err := e.risks.RiskScores(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk scores for %s: %w", symbol, err)
	}
	return scores, nil
}

func validateParams(strategy string, p Params) error {
	switch strategy {
	case StrategyBuyAndHold, StrategyRiskBased:
		if strategy == StrategyRiskBased && (p.RiskThreshold <= 0 || p.RiskThreshold >= 1) {
			return domain.NewInvalidConfiguration("risk threshold must be in (0,1)")
		}
		return nil
	case StrategyMovingAverage:
		if p.ShortWindow < 2 || p.LongWindow <= p.ShortWindow {
			return domain.NewInvalidConfiguration("moving average windows must satisfy 2 <= short < long")
		}
		return nil
	case StrategyMeanReversion:
		if p.Lookback < 2 {
			return domain.NewInvalidConfiguration("mean reversion lookback must be at least 2")
		}
		if p.ZExit <= p.ZEntry {
			return domain.NewInvalidConfiguration("z_exit must be greater than z_entry")
		}
		return nil
	default:
		return domain.NewUnknownStrategy(strategy)
	}
}

// minimumBars is the shortest history each strategy can run on: the longest
// lookback plus one tradable bar.
func minimumBars(strategy string, p Params) int {
	switch strategy {
	case StrategyMovingAverage:
		return p.LongWindow + 1
	case StrategyMeanReversion:
		return p.Lookback + 1
	default:
		return 2
	}
}
