package backtest

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/riskcore/internal/domain"
)

type fakeBars struct {
	series map[string]domain.Series
}

func (f *fakeBars) BarsBetween(symbol, from, to string) (domain.Series, error) {
	s, ok := f.series[symbol]
	if !ok {
		return domain.Series{Symbol: symbol}, nil
	}
	return s, nil
}

type fakeRisks struct {
	scores map[string]float64
}

func (f *fakeRisks) RiskScores(symbol string) (map[string]float64, error) {
	return f.scores, nil
}

func seriesFromCloses(symbol string, closes []float64) domain.Series {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Date:   start.AddDate(0, 0, i).Format("2006-01-02"),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return domain.Series{Symbol: symbol, Bars: bars}
}

func newTestEngine(series domain.Series, risks RiskProvider) *Engine {
	data := &fakeBars{series: map[string]domain.Series{series.Symbol: series}}
	return NewEngine(data, risks, zerolog.Nop())
}

func TestBuyAndHoldPinnedScenario(t *testing.T) {
	closes := []float64{100, 102, 101, 105, 110, 108, 112, 115, 113, 120}
	eng := newTestEngine(seriesFromCloses("ACME", closes), nil)

	res, err := eng.Run(Request{Symbol: "ACME", Strategy: StrategyBuyAndHold, InitialCapital: 10000})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, "BUY", res.Trades[0].Action)
	assert.InDelta(t, 100.0, res.Trades[0].Shares, 1e-12)

	assert.InDelta(t, 12000.0, res.Metrics.FinalEquity, 1e-9)
	assert.InDelta(t, 0.20, res.Metrics.TotalReturn, 1e-12)
	assert.InDelta(t, 0.20, res.Metrics.BenchmarkReturn, 1e-12)

	// Equity and benchmark coincide for buy and hold.
	for _, pt := range res.EquityCurve {
		assert.InDelta(t, pt.Benchmark, pt.Equity, 1e-9)
	}
	assert.NotEmpty(t, res.RunID)
}

func TestBuyAndHoldKeepsRemainderCash(t *testing.T) {
	eng := newTestEngine(seriesFromCloses("ACME", []float64{30, 60}), nil)

	res, err := eng.Run(Request{Symbol: "ACME", Strategy: StrategyBuyAndHold, InitialCapital: 100})
	require.NoError(t, err)

	// floor(100/30) = 3 shares, 10 left as cash: 3*60 + 10.
	assert.InDelta(t, 3.0, res.Trades[0].Shares, 1e-12)
	assert.InDelta(t, 190.0, res.Metrics.FinalEquity, 1e-9)
}

func TestMeanReversionEntersOnZScoreDip(t *testing.T) {
	closes := []float64{10, 10, 10, 7}
	eng := newTestEngine(seriesFromCloses("ACME", closes), nil)

	res, err := eng.Run(Request{
		Symbol:         "ACME",
		Strategy:       StrategyMeanReversion,
		InitialCapital: 1000,
		Params:         Params{Lookback: 3},
	})
	require.NoError(t, err)

	// Window [10,10,7]: mean 9, sample std sqrt(3), z = -2/sqrt(3) < -1.
	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, "BUY", trade.Action)
	assert.Equal(t, res.EquityCurve[3].Date, trade.Date)
	require.NotNil(t, trade.ZScore)
	assert.InDelta(t, -2.0/math.Sqrt(3), *trade.ZScore, 1e-9)
}

func TestMeanReversionRoundTrip(t *testing.T) {
	// Dip below the band, then revert above the exit threshold.
	closes := []float64{10, 10, 10, 10, 7, 10, 12, 12, 12}
	eng := newTestEngine(seriesFromCloses("ACME", closes), nil)

	res, err := eng.Run(Request{
		Symbol:         "ACME",
		Strategy:       StrategyMeanReversion,
		InitialCapital: 1000,
		Params:         Params{Lookback: 3},
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(res.Trades), 2)
	assert.Equal(t, "BUY", res.Trades[0].Action)
	assert.Equal(t, "SELL", res.Trades[1].Action)
	assert.Greater(t, res.Trades[1].Price, res.Trades[0].Price)
	assert.InDelta(t, 1.0, res.Metrics.WinRate, 1e-12)
}

func TestMovingAverageCrossover(t *testing.T) {
	// Flat, a clean run-up to force a golden cross, then a slide for the
	// death cross.
	closes := []float64{10, 10, 10, 10, 10, 12, 14, 16, 18, 20, 20, 18, 14, 10, 8, 7}
	eng := newTestEngine(seriesFromCloses("ACME", closes), nil)

	res, err := eng.Run(Request{
		Symbol:         "ACME",
		Strategy:       StrategyMovingAverage,
		InitialCapital: 1000,
		Params:         Params{ShortWindow: 2, LongWindow: 4},
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(res.Trades), 2)
	assert.Equal(t, "BUY", res.Trades[0].Action)
	assert.Equal(t, "SELL", res.Trades[1].Action)

	// No trading before the long window fills.
	firstTradable := res.EquityCurve[4].Date
	assert.GreaterOrEqual(t, res.Trades[0].Date, firstTradable)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1000.0, res.EquityCurve[i].Equity, 1e-12)
	}

	require.Len(t, res.MAData, len(closes))
	assert.Nil(t, res.MAData[0].ShortMA)
	assert.NotNil(t, res.MAData[1].ShortMA)
	assert.Nil(t, res.MAData[2].LongMA)
	assert.NotNil(t, res.MAData[3].LongMA)
}

func TestRiskBasedTradesOnThreshold(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104}
	series := seriesFromCloses("ACME", closes)
	dates := series.Dates()

	scores := map[string]float64{
		dates[0]: 0.3,
		dates[2]: 0.8,
		dates[3]: 0.8,
		dates[4]: 0.4,
		// dates[1] missing: neutral 0.5, position held.
	}
	eng := newTestEngine(series, &fakeRisks{scores: scores})

	res, err := eng.Run(Request{
		Symbol:         "ACME",
		Strategy:       StrategyRiskBased,
		InitialCapital: 1000,
		Params:         Params{RiskThreshold: 0.6},
	})
	require.NoError(t, err)

	require.Len(t, res.Trades, 3)
	assert.Equal(t, "BUY", res.Trades[0].Action)
	assert.Equal(t, dates[0], res.Trades[0].Date)
	require.NotNil(t, res.Trades[0].RiskScore)
	assert.InDelta(t, 0.3, *res.Trades[0].RiskScore, 1e-12)

	assert.Equal(t, "SELL", res.Trades[1].Action)
	assert.Equal(t, dates[2], res.Trades[1].Date)

	assert.Equal(t, "BUY", res.Trades[2].Action)
	assert.Equal(t, dates[4], res.Trades[2].Date)
}

func TestRiskBasedMissingScoresStaysNeutral(t *testing.T) {
	closes := []float64{100, 101, 102}
	eng := newTestEngine(seriesFromCloses("ACME", closes), &fakeRisks{scores: map[string]float64{}})

	res, err := eng.Run(Request{
		Symbol:         "ACME",
		Strategy:       StrategyRiskBased,
		InitialCapital: 1000,
		Params:         Params{RiskThreshold: 0.6},
	})
	require.NoError(t, err)

	// Neutral 0.5 is below the 0.6 threshold, so it buys immediately and holds.
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "BUY", res.Trades[0].Action)
}

func TestNoLookAhead(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 7, 10, 12, 12, 12}
	perturbed := append([]float64(nil), closes...)
	perturbed[len(perturbed)-1] = 1.0

	req := Request{
		Symbol:         "ACME",
		Strategy:       StrategyMeanReversion,
		InitialCapital: 1000,
		Params:         Params{Lookback: 3},
	}

	base, err := newTestEngine(seriesFromCloses("ACME", closes), nil).Run(req)
	require.NoError(t, err)
	alt, err := newTestEngine(seriesFromCloses("ACME", perturbed), nil).Run(req)
	require.NoError(t, err)

	// Changing the final bar must not change anything before it.
	lastDate := base.EquityCurve[len(base.EquityCurve)-1].Date
	for _, tr := range base.Trades {
		if tr.Date < lastDate {
			assert.Contains(t, alt.Trades, tr)
		}
	}
	for i := 0; i < len(base.EquityCurve)-1; i++ {
		assert.InDelta(t, base.EquityCurve[i].Equity, alt.EquityCurve[i].Equity, 1e-12)
	}
}

func TestRunValidation(t *testing.T) {
	eng := newTestEngine(seriesFromCloses("ACME", []float64{100, 101, 102}), nil)

	_, err := eng.Run(Request{Symbol: "ACME", Strategy: "martingale", InitialCapital: 1000})
	assert.Equal(t, domain.KindUnknownStrategy, domain.KindOf(err))

	_, err = eng.Run(Request{Symbol: "ACME", Strategy: StrategyBuyAndHold, InitialCapital: 0})
	assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))

	_, err = eng.Run(Request{
		Symbol: "ACME", Strategy: StrategyMovingAverage, InitialCapital: 1000,
		Params: Params{ShortWindow: 50, LongWindow: 20},
	})
	assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))

	_, err = eng.Run(Request{
		Symbol: "ACME", Strategy: StrategyMovingAverage, InitialCapital: 1000,
		Params: Params{ShortWindow: 2, LongWindow: 4},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInsufficientHistory, domain.KindOf(err))

	var coreErr *domain.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, 5, coreErr.Fields["required"])
}

func TestComputeMetricsExact(t *testing.T) {
	equity := []float64{100, 110, 99}
	trades := []Trade{
		{Action: "BUY", Price: 100},
		{Action: "SELL", Price: 110},
	}
	m := computeMetrics(equity, 100, trades)

	assert.InDelta(t, -0.01, m.TotalReturn, 1e-12)
	assert.InDelta(t, math.Pow(0.99, 252.0/3.0)-1, m.AnnualReturn, 1e-12)
	assert.InDelta(t, -11.0/110.0, m.MaxDrawdown, 1e-12)

	// Returns +10% then -10%: zero mean, population std 0.10.
	assert.InDelta(t, 0.0, m.SharpeRatio, 1e-9)
	assert.InDelta(t, 0.10*math.Sqrt(252), m.AnnualVolatility, 1e-9)

	assert.InDelta(t, 1.0, m.WinRate, 1e-12)
	assert.Equal(t, 1, m.TotalTrades)
	assert.InDelta(t, 99.0, m.FinalEquity, 1e-12)
}

func TestRoundTripsIgnoreOpenPosition(t *testing.T) {
	trades := []Trade{
		{Action: "BUY", Price: 100},
		{Action: "SELL", Price: 90},
		{Action: "BUY", Price: 80},
		{Action: "SELL", Price: 95},
		{Action: "BUY", Price: 100}, // still open
	}

	trips, wins := roundTrips(trades)
	assert.Equal(t, 2, trips)
	assert.Equal(t, 1, wins)

	// The trailing unclosed BUY counts toward neither total nor win rate.
	m := computeMetrics([]float64{100, 101, 102}, 100, trades)
	assert.Equal(t, 2, m.TotalTrades)
	assert.InDelta(t, 0.5, m.WinRate, 1e-12)

	trips, wins = roundTrips(nil)
	assert.Equal(t, 0, trips)
	assert.Equal(t, 0, wins)
}

func analysisCloses() []float64 {
	// 60 bars: climb to 120, crash 25%, recover past the old peak.
	closes := make([]float64, 0, 60)
	for i := 0; i < 20; i++ {
		closes = append(closes, 100+float64(i))
	}
	for i := 0; i < 10; i++ {
		closes = append(closes, 119-3*float64(i+1))
	}
	for i := 0; i < 30; i++ {
		closes = append(closes, 89+1.5*float64(i+1))
	}
	return closes
}

func TestAnalyzeHistoricalReport(t *testing.T) {
	closes := analysisCloses()
	series := seriesFromCloses("ACME", closes)
	eng := newTestEngine(series, nil)

	report, err := eng.Analyze("ACME", "", "")
	require.NoError(t, err)

	assert.Equal(t, "ACME", report.Symbol)
	assert.Equal(t, len(closes), report.DataPoints)
	assert.InDelta(t, closes[len(closes)-1]/closes[0]-1, report.TotalReturn, 1e-12)

	// The crash produced one recovered episode of depth (89-119)/119.
	require.NotEmpty(t, report.WorstDrawdowns)
	worst := report.WorstDrawdowns[0]
	assert.InDelta(t, (89.0-119.0)/119.0, worst.Depth, 1e-9)
	assert.True(t, worst.Recovered)
	assert.Greater(t, worst.DurationDays, 0)

	// Recovery ended above the old peak, so there is no open drawdown.
	assert.InDelta(t, 0.0, report.CurrentDrawdown, 1e-9)

	require.Len(t, report.DrawdownCurve, len(closes))
	assert.Len(t, report.Rolling, len(closes)-30)

	dist := report.Distribution
	assert.Equal(t, len(closes)-1, dist.TotalDays)
	assert.Equal(t, dist.TotalDays, dist.PositiveDays+dist.NegativeDays)
	assert.Len(t, dist.BinCounts, 40)
	assert.Len(t, dist.BinEdges, 41)
	total := 0
	for _, c := range dist.BinCounts {
		total += c
	}
	assert.Equal(t, dist.TotalDays, total)

	// 60 bars cover 1w/1m but not 3m.
	assert.Contains(t, report.PeriodReturns, "1w")
	assert.Contains(t, report.PeriodReturns, "1m")
	assert.NotContains(t, report.PeriodReturns, "3m")
	assert.InDelta(t, closes[len(closes)-1]/closes[len(closes)-6]-1, report.PeriodReturns["1w"], 1e-12)

	require.Len(t, report.BestDays, 5)
	require.Len(t, report.WorstDays, 5)
	assert.Greater(t, report.BestDays[0].Return, 0.0)
	assert.Less(t, report.WorstDays[0].Return, 0.0)
}

func TestAnalyzeRejectsShortHistory(t *testing.T) {
	eng := newTestEngine(seriesFromCloses("ACME", []float64{100, 101, 102}), nil)

	_, err := eng.Analyze("ACME", "", "")
	require.Error(t, err)
	assert.Equal(t, domain.KindInsufficientHistory, domain.KindOf(err))
}

func TestPeriodReturnsHorizons(t *testing.T) {
	closes := make([]float64, 260)
	for i := range closes {
		closes[i] = 100 * math.Pow(1.001, float64(i))
	}
	out := periodReturns(closes)

	for _, label := range []string{"1w", "1m", "3m", "6m", "1y"} {
		require.Contains(t, out, label, fmt.Sprintf("missing horizon %s", label))
	}
	assert.InDelta(t, math.Pow(1.001, 252)-1, out["1y"], 1e-9)
}
