// Package domain holds the shared data model for the analytics core.
// All types here are plain structured data suitable for JSON serialization;
// nothing in this package depends on storage or transport.
package domain

import (
	"fmt"
	"math"
	"sort"
)

// TradingDaysPerYear is the annualization convention used throughout the core.
const TradingDaysPerYear = 252

// Bar is one OHLCV record for one symbol on one trading day.
// Dates use the "2006-01-02" format, which sorts lexically in date order.
type Bar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjusted_close"`
	Volume   int64   `json:"volume"`
}

// Series is an ordered bar history for a single symbol.
// Bars are ascending by date with no duplicates; gaps (non-trading days)
// are simply absent, never interpolated.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Validate checks the series ordering invariants.
func (s Series) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		if s.Bars[i].Date <= s.Bars[i-1].Date {
			return NewInvalidConfiguration(
				fmt.Sprintf("bars for %s not strictly ascending at index %d (%s <= %s)",
					s.Symbol, i, s.Bars[i].Date, s.Bars[i-1].Date))
		}
	}
	return nil
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Bars) }

// Dates returns the bar dates in order.
func (s Series) Dates() []string {
	dates := make([]string, len(s.Bars))
	for i, b := range s.Bars {
		dates[i] = b.Date
	}
	return dates
}

// Closes returns the close prices in order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// AdjCloses returns adjusted close prices, falling back to the raw close
// when no adjusted value is present.
func (s Series) AdjCloses() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		if b.AdjClose > 0 {
			out[i] = b.AdjClose
		} else {
			out[i] = b.Close
		}
	}
	return out
}

// LogReturns returns daily log returns of the adjusted close.
// The result has len(bars)-1 entries; entry i is ln(p[i+1]/p[i]).
func (s Series) LogReturns() []float64 {
	prices := s.AdjCloses()
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return out
}

// SimpleReturns returns daily simple returns of the adjusted close.
func (s Series) SimpleReturns() []float64 {
	prices := s.AdjCloses()
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = prices[i]/prices[i-1] - 1
	}
	return out
}

// SentimentPoint is a news-derived sentiment aggregate for one (symbol, date).
// An absent point means "no news that day", which is distinct from a point
// with AvgSentiment == 0 (balanced news).
type SentimentPoint struct {
	AvgSentiment float64 `json:"avg_sentiment"` // in [-1, 1]
	ArticleCount int     `json:"article_count"`
}

// RiskLevel is the discrete partition of a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// AlignedReturns intersects the bar histories of several series on their
// common dates and returns per-symbol simple return slices of equal length,
// plus the shared return dates. Symbols missing a date drop that date for
// everyone; nothing is imputed.
func AlignedReturns(series []Series) (map[string][]float64, []string) {
	if len(series) == 0 {
		return nil, nil
	}

	// Count date occurrences across all series.
	counts := make(map[string]int)
	for _, s := range series {
		for _, b := range s.Bars {
			counts[b.Date]++
		}
	}
	common := make([]string, 0, len(counts))
	for d, c := range counts {
		if c == len(series) {
			common = append(common, d)
		}
	}
	sort.Strings(common)
	if len(common) < 2 {
		return nil, nil
	}

	index := make(map[string]int, len(common))
	for i, d := range common {
		index[d] = i
	}

	returns := make(map[string][]float64, len(series))
	for _, s := range series {
		prices := make([]float64, len(common))
		adj := s.AdjCloses()
		for i, b := range s.Bars {
			if j, ok := index[b.Date]; ok {
				prices[j] = adj[i]
			}
		}
		r := make([]float64, len(common)-1)
		for i := 1; i < len(common); i++ {
			r[i-1] = prices[i]/prices[i-1] - 1
		}
		returns[s.Symbol] = r
	}
	return returns, common[1:]
}
