package backtest

import "math"

// position is the simulator's state: cash plus whole shares. Buying spends
// floor(cash/price) shares' worth and keeps the remainder as cash; selling
// liquidates in full.
type position struct {
	cash   float64
	shares float64
}

func (p *position) buy(price float64) float64 {
	shares := math.Floor(p.cash / price)
	if shares <= 0 {
		return 0
	}
	p.cash -= shares * price
	p.shares = shares
	return shares
}

func (p *position) sell(price float64) {
	p.cash += p.shares * price
	p.shares = 0
}

func (p *position) equity(price float64) float64 {
	return p.cash + p.shares*price
}

func (p *position) long() bool { return p.shares > 0 }

// runBuyAndHold buys at the first close and holds to the end.
func runBuyAndHold(dates []string, closes []float64, capital float64) ([]float64, []Trade) {
	pos := position{cash: capital}
	shares := pos.buy(closes[0])

	equity := make([]float64, len(closes))
	for i, p := range closes {
		equity[i] = pos.equity(p)
	}
	trades := []Trade{{Date: dates[0], Action: "BUY", Price: closes[0], Shares: shares}}
	return equity, trades
}

// runMovingAverage trades the SMA crossover: a golden cross (short rising
// through long) buys, a death cross sells. No trading happens until the
// long window has filled; equity stays at the initial capital before that.
func runMovingAverage(dates []string, closes []float64, capital float64, shortWindow, longWindow int) ([]float64, []Trade, []MAPoint) {
	shortMA := rollingMean(closes, shortWindow)
	longMA := rollingMean(closes, longWindow)

	pos := position{cash: capital}
	equity := make([]float64, len(closes))
	var trades []Trade

	for i, p := range closes {
		if i < longWindow {
			equity[i] = capital
			continue
		}
		if !pos.long() && shortMA[i] > longMA[i] && shortMA[i-1] <= longMA[i-1] {
			if shares := pos.buy(p); shares > 0 {
				trades = append(trades, Trade{Date: dates[i], Action: "BUY", Price: p, Shares: shares})
			}
		} else if pos.long() && shortMA[i] < longMA[i] && shortMA[i-1] >= longMA[i-1] {
			pos.sell(p)
			trades = append(trades, Trade{Date: dates[i], Action: "SELL", Price: p})
		}
		equity[i] = pos.equity(p)
	}

	maData := make([]MAPoint, len(closes))
	for i := range closes {
		pt := MAPoint{Date: dates[i], Close: closes[i]}
		if !math.IsNaN(shortMA[i]) {
			v := shortMA[i]
			pt.ShortMA = &v
		}
		if !math.IsNaN(longMA[i]) {
			v := longMA[i]
			pt.LongMA = &v
		}
		maData[i] = pt
	}
	return equity, trades, maData
}

// runRiskBased holds the position while the risk score stays below the
// threshold and steps aside when it crosses it. Dates with no score are
// treated as neutral 0.5.
func runRiskBased(dates []string, closes []float64, capital float64, scores map[string]float64, threshold float64) ([]float64, []Trade) {
	pos := position{cash: capital}
	equity := make([]float64, len(closes))
	var trades []Trade

	for i, p := range closes {
		risk, ok := scores[dates[i]]
		if !ok {
			risk = 0.5
		}
		if !pos.long() && risk < threshold {
			if shares := pos.buy(p); shares > 0 {
				r := risk
				trades = append(trades, Trade{Date: dates[i], Action: "BUY", Price: p, Shares: shares, RiskScore: &r})
			}
		} else if pos.long() && risk >= threshold {
			pos.sell(p)
			r := risk
			trades = append(trades, Trade{Date: dates[i], Action: "SELL", Price: p, RiskScore: &r})
		}
		equity[i] = pos.equity(p)
	}
	return equity, trades
}

// runMeanReversion buys when the price z-score against its rolling window
// drops below zEntry and sells once it reverts above zExit. Bars before the
// window fills, or with zero dispersion, are skipped.
func runMeanReversion(dates []string, closes []float64, capital float64, lookback int, zEntry, zExit float64) ([]float64, []Trade) {
	mean := rollingMean(closes, lookback)
	std := rollingStd(closes, lookback)

	pos := position{cash: capital}
	equity := make([]float64, len(closes))
	var trades []Trade

	for i, p := range closes {
		if i < lookback || math.IsNaN(std[i]) || std[i] == 0 {
			equity[i] = capital
			continue
		}
		z := (p - mean[i]) / std[i]

		if !pos.long() && z < zEntry {
			if shares := pos.buy(p); shares > 0 {
				zv := z
				trades = append(trades, Trade{Date: dates[i], Action: "BUY", Price: p, Shares: shares, ZScore: &zv})
			}
		} else if pos.long() && z > zExit {
			pos.sell(p)
			zv := z
			trades = append(trades, Trade{Date: dates[i], Action: "SELL", Price: p, ZScore: &zv})
		}
		equity[i] = pos.equity(p)
	}
	return equity, trades
}

// rollingMean emits NaN until the window fills.
func rollingMean(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		out[i] = math.NaN()
	}
	var sum float64
	for i, v := range vals {
		sum += v
		if i >= window {
			sum -= vals[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// rollingStd is the sample standard deviation over the trailing window.
func rollingStd(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := window - 1; i < len(vals); i++ {
		w := vals[i-window+1 : i+1]
		var mean float64
		for _, v := range w {
			mean += v
		}
		mean /= float64(window)
		var ss float64
		for _, v := range w {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}
