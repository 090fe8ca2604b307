package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/riskcore/internal/domain"
)

// computeMetrics derives the standard performance statistics from an equity
// curve. Annualization compounds the total return over 252 trading days;
// volatility uses the population standard deviation of daily equity
// returns; Sortino replaces it with downside-only deviation. Trade counts
// and win rate cover completed BUY-SELL round trips only; an open position
// at the end of the run is excluded from both.
func computeMetrics(equity []float64, initialCapital float64, trades []Trade) Metrics {
	n := len(equity)
	final := equity[n-1]
	totalReturn := (final - initialCapital) / initialCapital
	annualReturn := math.Pow(1+totalReturn, float64(domain.TradingDaysPerYear)/float64(max(n, 1))) - 1

	// Max drawdown of the equity curve.
	peak := equity[0]
	maxDrawdown := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		dd := (e - peak) / peak
		if dd < maxDrawdown {
			maxDrawdown = dd
		}
	}

	dailyReturns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if equity[i-1] != 0 {
			dailyReturns = append(dailyReturns, equity[i]/equity[i-1]-1)
		}
	}

	var sharpe, annualVol, sortino float64
	if len(dailyReturns) > 1 {
		mean := stat.Mean(dailyReturns, nil)
		std := stat.PopStdDev(dailyReturns, nil)
		sqrtDays := math.Sqrt(domain.TradingDaysPerYear)
		if std > 0 {
			sharpe = (mean * domain.TradingDaysPerYear) / (std * sqrtDays)
			annualVol = std * sqrtDays
		}

		var downside []float64
		for _, r := range dailyReturns {
			if r < 0 {
				downside = append(downside, r)
			}
		}
		if len(downside) > 0 {
			downsideDev := stat.PopStdDev(downside, nil) * sqrtDays
			if downsideDev > 0 {
				sortino = mean * domain.TradingDaysPerYear / downsideDev
			}
		}
	}

	trips, wins := roundTrips(trades)
	var winRate float64
	if trips > 0 {
		winRate = float64(wins) / float64(trips)
	}

	return Metrics{
		TotalReturn:      totalReturn,
		AnnualReturn:     annualReturn,
		MaxDrawdown:      maxDrawdown,
		SharpeRatio:      sharpe,
		SortinoRatio:     sortino,
		AnnualVolatility: annualVol,
		WinRate:          winRate,
		TotalTrades:      trips,
		FinalEquity:      final,
	}
}

// roundTrips counts completed BUY-SELL pairs and how many closed profitable.
func roundTrips(trades []Trade) (trips, wins int) {
	i := 0
	for i < len(trades)-1 {
		if trades[i].Action == "BUY" && trades[i+1].Action == "SELL" {
			trips++
			if trades[i+1].Price > trades[i].Price {
				wins++
			}
			i += 2
		} else {
			i++
		}
	}
	return trips, wins
}
