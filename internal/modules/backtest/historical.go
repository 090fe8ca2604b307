package backtest

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/riskcore/internal/domain"
)

const (
	minAnalysisBars = 30

	// A drawdown episode opens when the decline from the running peak
	// exceeds 1% and closes once the price is back within 0.1% of it.
	drawdownEnter   = -0.01
	drawdownRecover = -0.001

	rollingWindow     = 30
	histogramBins     = 40
	maxEpisodes       = 10
	bestWorstDayCount = 5
)

// DrawdownEpisode is one peak-to-recovery decline.
type DrawdownEpisode struct {
	StartDate    string  `json:"start_date"`
	TroughDate   string  `json:"trough_date"`
	EndDate      string  `json:"end_date,omitempty"`
	Depth        float64 `json:"depth"`
	DurationDays int     `json:"duration_days"`
	Recovered    bool    `json:"recovered"`
}

// DrawdownPoint is the running drawdown on one bar.
type DrawdownPoint struct {
	Date     string  `json:"date"`
	Drawdown float64 `json:"drawdown"`
}

// RollingPoint carries trailing 30-day metrics for one bar.
type RollingPoint struct {
	Date       string  `json:"date"`
	Return     float64 `json:"return"`
	Volatility float64 `json:"volatility"`
	Sharpe     float64 `json:"sharpe"`
}

// ReturnDistribution summarizes the daily return series.
type ReturnDistribution struct {
	Mean         float64   `json:"mean"`
	Std          float64   `json:"std"`
	Skew         float64   `json:"skew"`
	Kurtosis     float64   `json:"kurtosis"`
	Min          float64   `json:"min"`
	Max          float64   `json:"max"`
	PositiveDays int       `json:"positive_days"`
	NegativeDays int       `json:"negative_days"`
	TotalDays    int       `json:"total_days"`
	BinEdges     []float64 `json:"bin_edges"`
	BinCounts    []int     `json:"bin_counts"`
}

// DayReturn is one daily return, used for the best/worst day lists.
type DayReturn struct {
	Date   string  `json:"date"`
	Return float64 `json:"return"`
}

// HistoricalAnalysis is the full descriptive report for one symbol.
type HistoricalAnalysis struct {
	Symbol          string             `json:"symbol"`
	StartDate       string             `json:"start_date"`
	EndDate         string             `json:"end_date"`
	DataPoints      int                `json:"data_points"`
	TotalReturn     float64            `json:"total_return"`
	CurrentDrawdown float64            `json:"current_drawdown"`
	DrawdownCurve   []DrawdownPoint    `json:"drawdown_curve"`
	WorstDrawdowns  []DrawdownEpisode  `json:"worst_drawdowns"`
	Rolling         []RollingPoint     `json:"rolling"`
	Distribution    ReturnDistribution `json:"distribution"`
	PeriodReturns   map[string]float64 `json:"period_returns"`
	BestDays        []DayReturn        `json:"best_days"`
	WorstDays       []DayReturn        `json:"worst_days"`
}

// Analyze builds the historical report from stored bars.
func (e *Engine) Analyze(symbol, from, to string) (*HistoricalAnalysis, error) {
	series, err := e.data.BarsBetween(symbol, from, to)
	if err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if series.Len() < minAnalysisBars {
		return nil, domain.NewInsufficientHistory(
			"not enough history for analysis of "+symbol, minAnalysisBars, series.Len())
	}

	dates := series.Dates()
	closes := series.Closes()
	returns := dailyReturns(closes)

	curve := drawdownCurve(dates, closes)
	analysis := &HistoricalAnalysis{
		Symbol:          symbol,
		StartDate:       dates[0],
		EndDate:         dates[len(dates)-1],
		DataPoints:      len(closes),
		TotalReturn:     closes[len(closes)-1]/closes[0] - 1,
		CurrentDrawdown: curve[len(curve)-1].Drawdown,
		DrawdownCurve:   curve,
		WorstDrawdowns:  worstDrawdowns(curve),
		Rolling:         rollingMetrics(dates, closes),
		Distribution:    returnDistribution(returns),
		PeriodReturns:   periodReturns(closes),
		BestDays:        extremeDays(dates, returns, true),
		WorstDays:       extremeDays(dates, returns, false),
	}
	return analysis, nil
}

func dailyReturns(closes []float64) []float64 {
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out[i-1] = closes[i]/closes[i-1] - 1
	}
	return out
}

func drawdownCurve(dates []string, closes []float64) []DrawdownPoint {
	out := make([]DrawdownPoint, len(closes))
	peak := closes[0]
	for i, c := range closes {
		if c > peak {
			peak = c
		}
		out[i] = DrawdownPoint{Date: dates[i], Drawdown: (c - peak) / peak}
	}
	return out
}

// worstDrawdowns segments the drawdown curve into episodes and keeps the
// deepest ten. An episode still open at the last bar is reported as
// unrecovered.
func worstDrawdowns(curve []DrawdownPoint) []DrawdownEpisode {
	var episodes []DrawdownEpisode
	var current *DrawdownEpisode

	for _, pt := range curve {
		switch {
		case current == nil && pt.Drawdown < drawdownEnter:
			current = &DrawdownEpisode{
				StartDate:  pt.Date,
				TroughDate: pt.Date,
				Depth:      pt.Drawdown,
			}
		case current != nil && pt.Drawdown < current.Depth:
			current.Depth = pt.Drawdown
			current.TroughDate = pt.Date
		}
		if current != nil && pt.Drawdown >= drawdownRecover {
			current.EndDate = pt.Date
			current.Recovered = true
			current.DurationDays = daysBetween(current.StartDate, pt.Date)
			episodes = append(episodes, *current)
			current = nil
		}
	}
	if current != nil {
		last := curve[len(curve)-1]
		current.DurationDays = daysBetween(current.StartDate, last.Date)
		episodes = append(episodes, *current)
	}

	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].Depth < episodes[j].Depth
	})
	if len(episodes) > maxEpisodes {
		episodes = episodes[:maxEpisodes]
	}
	return episodes
}

func daysBetween(from, to string) int {
	a, errA := time.Parse("2006-01-02", from)
	b, errB := time.Parse("2006-01-02", to)
	if errA != nil || errB != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}

func rollingMetrics(dates []string, closes []float64) []RollingPoint {
	var out []RollingPoint
	sqrtDays := math.Sqrt(domain.TradingDaysPerYear)

	for i := rollingWindow; i < len(closes); i++ {
		window := dailyReturns(closes[i-rollingWindow : i+1])
		mean := stat.Mean(window, nil)
		std := stat.PopStdDev(window, nil)

		pt := RollingPoint{
			Date:       dates[i],
			Return:     closes[i]/closes[i-rollingWindow] - 1,
			Volatility: std * sqrtDays,
		}
		if std > 0 {
			pt.Sharpe = (mean * domain.TradingDaysPerYear) / (std * sqrtDays)
		}
		out = append(out, pt)
	}
	return out
}

func returnDistribution(returns []float64) ReturnDistribution {
	dist := ReturnDistribution{
		Mean:      stat.Mean(returns, nil),
		Std:       stat.PopStdDev(returns, nil),
		Skew:      stat.Skew(returns, nil),
		Kurtosis:  stat.ExKurtosis(returns, nil),
		TotalDays: len(returns),
	}
	dist.Min, dist.Max = minMaxOf(returns)
	for _, r := range returns {
		if r > 0 {
			dist.PositiveDays++
		} else if r < 0 {
			dist.NegativeDays++
		}
	}

	dist.BinEdges = make([]float64, histogramBins+1)
	dist.BinCounts = make([]int, histogramBins)
	width := (dist.Max - dist.Min) / histogramBins
	if width == 0 {
		width = 1
	}
	for i := range dist.BinEdges {
		dist.BinEdges[i] = dist.Min + float64(i)*width
	}
	for _, r := range returns {
		bin := int((r - dist.Min) / width)
		if bin >= histogramBins {
			bin = histogramBins - 1
		}
		dist.BinCounts[bin]++
	}
	return dist
}

func minMaxOf(vals []float64) (float64, float64) {
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// periodReturns reports the trailing return over standard horizons; horizons
// longer than the history are omitted.
func periodReturns(closes []float64) map[string]float64 {
	horizons := []struct {
		label string
		bars  int
	}{
		{"1w", 5},
		{"1m", 21},
		{"3m", 63},
		{"6m", 126},
		{"1y", 252},
	}

	last := closes[len(closes)-1]
	out := make(map[string]float64)
	for _, h := range horizons {
		if len(closes) <= h.bars {
			continue
		}
		out[h.label] = last/closes[len(closes)-1-h.bars] - 1
	}
	return out
}

func extremeDays(dates []string, returns []float64, best bool) []DayReturn {
	days := make([]DayReturn, len(returns))
	for i, r := range returns {
		days[i] = DayReturn{Date: dates[i+1], Return: r}
	}
	sort.Slice(days, func(i, j int) bool {
		if best {
			return days[i].Return > days[j].Return
		}
		return days[i].Return < days[j].Return
	})
	if len(days) > bestWorstDayCount {
		days = days[:bestWorstDayCount]
	}
	return days
}
