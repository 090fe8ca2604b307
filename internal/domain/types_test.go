package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsFromCloses(symbol string, dates []string, closes []float64) Series {
	bars := make([]Bar, len(closes))
	for i := range closes {
		bars[i] = Bar{Date: dates[i], Close: closes[i], AdjClose: closes[i]}
	}
	return Series{Symbol: symbol, Bars: bars}
}

func TestSeriesValidateOrdering(t *testing.T) {
	good := barsFromCloses("A", []string{"2024-01-02", "2024-01-03", "2024-01-05"}, []float64{1, 2, 3})
	assert.NoError(t, good.Validate())

	dup := barsFromCloses("A", []string{"2024-01-02", "2024-01-02"}, []float64{1, 2})
	assert.Error(t, dup.Validate())

	backwards := barsFromCloses("A", []string{"2024-01-03", "2024-01-02"}, []float64{1, 2})
	assert.Error(t, backwards.Validate())
}

func TestReturns(t *testing.T) {
	s := barsFromCloses("A", []string{"2024-01-02", "2024-01-03", "2024-01-04"}, []float64{100, 110, 99})

	simple := s.SimpleReturns()
	require.Len(t, simple, 2)
	assert.InDelta(t, 0.10, simple[0], 1e-12)
	assert.InDelta(t, -0.10, simple[1], 1e-12)

	logs := s.LogReturns()
	require.Len(t, logs, 2)
	assert.InDelta(t, math.Log(1.1), logs[0], 1e-12)
	assert.InDelta(t, math.Log(0.9), logs[1], 1e-12)
}

func TestAdjClosesFallback(t *testing.T) {
	s := Series{Symbol: "A", Bars: []Bar{
		{Date: "2024-01-02", Close: 100, AdjClose: 98},
		{Date: "2024-01-03", Close: 101, AdjClose: 0},
	}}
	adj := s.AdjCloses()
	assert.Equal(t, []float64{98, 101}, adj)
}

func TestAlignedReturnsIntersectsDates(t *testing.T) {
	a := barsFromCloses("A",
		[]string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"},
		[]float64{100, 101, 102, 103})
	// B is missing 2024-01-04.
	b := barsFromCloses("B",
		[]string{"2024-01-02", "2024-01-03", "2024-01-05"},
		[]float64{50, 51, 52})

	returns, dates := AlignedReturns([]Series{a, b})
	require.Len(t, dates, 2)
	assert.Equal(t, []string{"2024-01-03", "2024-01-05"}, dates)

	// A's second aligned return skips the dropped date: 103/101 - 1.
	require.Len(t, returns["A"], 2)
	assert.InDelta(t, 101.0/100.0-1, returns["A"][0], 1e-12)
	assert.InDelta(t, 103.0/101.0-1, returns["A"][1], 1e-12)
	assert.InDelta(t, 52.0/51.0-1, returns["B"][1], 1e-12)
}

func TestAlignedReturnsNoOverlap(t *testing.T) {
	a := barsFromCloses("A", []string{"2024-01-02", "2024-01-03"}, []float64{1, 2})
	b := barsFromCloses("B", []string{"2024-02-02", "2024-02-03"}, []float64{1, 2})

	returns, dates := AlignedReturns([]Series{a, b})
	assert.Nil(t, returns)
	assert.Nil(t, dates)
}
