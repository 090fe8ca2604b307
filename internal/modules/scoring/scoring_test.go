package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/riskcore/internal/config"
	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/internal/modules/features"
	"github.com/quantlab/riskcore/internal/workers"
)

func defaultWeights() config.RiskWeights {
	return config.RiskWeights{Volatility: 0.40, Drawdown: 0.30, Sentiment: 0.20, Liquidity: 0.10}
}

func defaultThresholds() config.RiskThresholds {
	return config.RiskThresholds{Low: 0.4, Medium: 0.6}
}

func fptr(v float64) *float64 { return &v }

func newWeightedService(t *testing.T, data DataSource) *Service {
	t.Helper()
	scorer, err := NewWeightedSumScorer(defaultWeights())
	require.NoError(t, err)
	svc, err := NewService(data, features.NewEngine(zerolog.Nop()), scorer,
		defaultThresholds(), "SPY", 252, workers.NewPool(4), zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func TestNormalizeVolatilityMinMax(t *testing.T) {
	inputs := []Input{
		{Symbol: "A", Volatility: fptr(0.1)},
		{Symbol: "B", Volatility: fptr(0.2)},
		{Symbol: "C", Volatility: fptr(0.3)},
	}

	comps, _ := NormalizeComponents(inputs)

	assert.InDelta(t, 0.0, comps[0].Volatility, 1e-12)
	assert.InDelta(t, 0.5, comps[1].Volatility, 1e-12)
	assert.InDelta(t, 1.0, comps[2].Volatility, 1e-12)
}

func TestNormalizeSentimentMapping(t *testing.T) {
	inputs := []Input{
		{Symbol: "NEG", Sentiment: fptr(-1.0)},
		{Symbol: "BAL", Sentiment: fptr(0.0)},
		{Symbol: "POS", Sentiment: fptr(1.0)},
		{Symbol: "NONE"},
	}

	comps, missing := NormalizeComponents(inputs)

	assert.InDelta(t, 1.0, comps[0].Sentiment, 1e-12)
	assert.InDelta(t, 0.5, comps[1].Sentiment, 1e-12)
	assert.InDelta(t, 0.0, comps[2].Sentiment, 1e-12)

	// Missing news is neutral but flagged; balanced news is neutral unflagged.
	assert.InDelta(t, 0.5, comps[3].Sentiment, 1e-12)
	assert.True(t, missing[3])
	assert.False(t, missing[1])
}

func TestNormalizeDrawdownClamp(t *testing.T) {
	inputs := []Input{
		{Symbol: "A", DrawdownMagnitude: fptr(0.35)},
		{Symbol: "B", DrawdownMagnitude: fptr(1.8)},
	}

	comps, _ := NormalizeComponents(inputs)

	assert.InDelta(t, 0.35, comps[0].Drawdown, 1e-12)
	assert.Equal(t, 1.0, comps[1].Drawdown)
}

func TestNormalizeLiquidity95thPercentile(t *testing.T) {
	inputs := make([]Input, 0, 20)
	for i := 0; i < 19; i++ {
		inputs = append(inputs, Input{Symbol: "S", LiquidityRisk: fptr(0.5)})
	}
	// One extreme outlier must not compress everyone else to near-zero.
	inputs = append(inputs, Input{Symbol: "OUT", LiquidityRisk: fptr(100)})

	comps, _ := NormalizeComponents(inputs)

	assert.Greater(t, comps[0].Liquidity, 0.05)
	assert.Equal(t, 1.0, comps[19].Liquidity)
}

func TestWeightedScoreComposite(t *testing.T) {
	scorer, err := NewWeightedSumScorer(defaultWeights())
	require.NoError(t, err)

	score, err := scorer.Score(Input{}, Components{Volatility: 1, Drawdown: 0.5, Sentiment: 0.5, Liquidity: 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.40*1+0.30*0.5+0.20*0.5, score, 1e-12)
}

func TestWeightedSumScorerRejectsBadWeights(t *testing.T) {
	_, err := NewWeightedSumScorer(config.RiskWeights{Volatility: 0.5, Drawdown: 0.5, Sentiment: 0.5, Liquidity: 0.5})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))

	_, err = NewWeightedSumScorer(config.RiskWeights{Volatility: 1.2, Drawdown: -0.2})
	require.Error(t, err)
}

func TestClassifyBoundaries(t *testing.T) {
	svc := newWeightedService(t, nil)

	assert.Equal(t, domain.RiskLow, svc.classify(0.39))
	assert.Equal(t, domain.RiskMedium, svc.classify(0.40))
	assert.Equal(t, domain.RiskMedium, svc.classify(0.59))
	assert.Equal(t, domain.RiskHigh, svc.classify(0.60))
	assert.Equal(t, domain.RiskHigh, svc.classify(0.95))
}

func TestAssignRanksUniqueWithDeterministicTies(t *testing.T) {
	results := []Result{
		{Symbol: "C", Score: 0.8},
		{Symbol: "A", Score: 0.2},
		{Symbol: "B", Score: 0.8},
		{Symbol: "D", Score: 0.5},
	}

	assignRanks(results)

	// Ranks are unique; the 0.8 tie resolves by symbol order.
	assert.Equal(t, "B", results[0].Symbol)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "C", results[1].Symbol)
	assert.Equal(t, 2, results[1].Rank)
	assert.Equal(t, "D", results[2].Symbol)
	assert.Equal(t, 3, results[2].Rank)
	assert.Equal(t, "A", results[3].Symbol)
	assert.Equal(t, 4, results[3].Rank)
}

func TestScoreInputsEndToEnd(t *testing.T) {
	svc := newWeightedService(t, nil)

	inputs := []Input{
		{Symbol: "CALM", Volatility: fptr(0.10), DrawdownMagnitude: fptr(0.02), Sentiment: fptr(0.5), LiquidityRisk: fptr(0.1)},
		{Symbol: "WILD", Volatility: fptr(0.80), DrawdownMagnitude: fptr(0.45), Sentiment: fptr(-0.7), LiquidityRisk: fptr(0.9)},
	}

	results, err := svc.ScoreInputs(inputs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "WILD", results[0].Symbol)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, domain.RiskHigh, results[0].Level)
	assert.Contains(t, results[0].Drivers, "High volatility")
	assert.Contains(t, results[0].Drivers, "Negative news sentiment")

	assert.Equal(t, "CALM", results[1].Symbol)
	assert.Equal(t, domain.RiskLow, results[1].Level)
	assert.Equal(t, "Stable conditions", results[1].Drivers)
	assert.False(t, results[1].SentimentMissing)
}

func TestWeightedAttribution(t *testing.T) {
	scorer, err := NewWeightedSumScorer(defaultWeights())
	require.NoError(t, err)

	att := scorer.Attribution(Input{Symbol: "X"},
		Components{Volatility: 1.0, Drawdown: 0.5, Sentiment: 0.1, Liquidity: 0.5}, 3)

	assert.Equal(t, "X", att.Symbol)
	assert.InDelta(t, 0.5, att.Baseline, 1e-12)
	require.Len(t, att.Up, 1)
	assert.Equal(t, "volatility", att.Up[0].Feature)
	assert.InDelta(t, 0.40*0.5, att.Up[0].Contribution, 1e-12)
	require.Len(t, att.Down, 1)
	assert.Equal(t, "sentiment", att.Down[0].Feature)
}

// fakeStore is an in-memory DataSource for Refresh tests.
type fakeStore struct {
	series    map[string]domain.Series
	sentiment map[string]map[string]domain.SentimentPoint
}

func (f *fakeStore) Symbols() ([]string, error) {
	var out []string
	for s := range f.series {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) BarsBetween(symbol, from, to string) (domain.Series, error) {
	s := f.series[symbol]
	out := domain.Series{Symbol: symbol}
	for _, b := range s.Bars {
		if from != "" && b.Date < from {
			continue
		}
		if to != "" && b.Date > to {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out, nil
}

func (f *fakeStore) SentimentBetween(symbol, from, to string) (map[string]domain.SentimentPoint, error) {
	out := make(map[string]domain.SentimentPoint)
	for date, p := range f.sentiment[symbol] {
		if (from == "" || date >= from) && (to == "" || date <= to) {
			out[date] = p
		}
	}
	return out, nil
}

// barsEndingToday builds n daily bars ending today so the refresh lookback
// window always covers them.
func barsEndingToday(symbol string, n int, start, dailyGrowth float64) domain.Series {
	s := domain.Series{Symbol: symbol}
	price := start
	day := time.Now().AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		day = day.AddDate(0, 0, 1)
		s.Bars = append(s.Bars, domain.Bar{
			Date:     day.Format("2006-01-02"),
			Open:     price,
			High:     price * 1.01,
			Low:      price * 0.99,
			Close:    price,
			AdjClose: price,
			Volume:   1_000_000 + int64(i%7)*50_000,
		})
		price *= 1 + dailyGrowth
	}
	return s
}

func TestRefreshScoresUniverse(t *testing.T) {
	calm := barsEndingToday("CALM", 150, 100, 0.0005)
	wild := barsEndingToday("WILD", 150, 50, 0)
	// Make WILD genuinely volatile.
	for i := range wild.Bars {
		f := 1 + 0.05*float64(i%2*2-1)
		wild.Bars[i].Close *= f
		wild.Bars[i].AdjClose = wild.Bars[i].Close
	}
	spy := barsEndingToday("SPY", 150, 400, 0.0003)

	lastDate := calm.Bars[len(calm.Bars)-1].Date
	store := &fakeStore{
		series: map[string]domain.Series{"CALM": calm, "WILD": wild, "SPY": spy},
		sentiment: map[string]map[string]domain.SentimentPoint{
			"CALM": {lastDate: {AvgSentiment: 0.4, ArticleCount: 5}},
		},
	}

	svc := newWeightedService(t, store)
	require.NoError(t, svc.Refresh(context.Background()))

	results, updatedAt, ok := svc.Latest()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), updatedAt, time.Minute)

	// SPY is the market proxy, not a scored symbol.
	require.Len(t, results, 2)
	assert.Equal(t, "WILD", results[0].Symbol)
	assert.Equal(t, 1, results[0].Rank)
	assert.Greater(t, results[0].Score, results[1].Score)

	// CALM had news, WILD did not.
	for _, r := range results {
		if r.Symbol == "CALM" {
			assert.False(t, r.SentimentMissing)
		} else {
			assert.True(t, r.SentimentMissing)
		}
	}

	att, err := svc.Attribution("WILD", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, att.Up)

	_, err = svc.Attribution("NOPE", 3)
	require.Error(t, err)
}
