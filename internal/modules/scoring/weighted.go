package scoring

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/riskcore/internal/config"
)

// neutralComponent stands in for any component whose input is missing.
const neutralComponent = 0.5

// NormalizeComponents converts raw inputs to [0,1] risk components against
// the same-date universe snapshot:
//   - volatility is min-max scaled over the universe,
//   - drawdown magnitude is clamped to [0,1],
//   - sentiment s in [-1,1] maps to (1-s)/2, so negative news scores high,
//   - liquidity risk is scaled by the universe 95th percentile to keep a
//     single illiquid outlier from compressing everyone else.
//
// The returned flags mark symbols whose sentiment was substituted.
func NormalizeComponents(inputs []Input) ([]Components, []bool) {
	minVol, maxVol := math.Inf(1), math.Inf(-1)
	var liq []float64
	for _, in := range inputs {
		if in.Volatility != nil {
			if *in.Volatility < minVol {
				minVol = *in.Volatility
			}
			if *in.Volatility > maxVol {
				maxVol = *in.Volatility
			}
		}
		if in.LiquidityRisk != nil {
			liq = append(liq, *in.LiquidityRisk)
		}
	}
	volSpan := maxVol - minVol
	liqScale := 0.0
	if len(liq) > 0 {
		sort.Float64s(liq)
		liqScale = stat.Quantile(0.95, stat.LinInterp, liq, nil)
	}

	comps := make([]Components, len(inputs))
	missing := make([]bool, len(inputs))
	for i, in := range inputs {
		c := Components{
			Volatility: neutralComponent,
			Drawdown:   neutralComponent,
			Sentiment:  neutralComponent,
			Liquidity:  neutralComponent,
		}
		if in.Volatility != nil && volSpan > 0 {
			c.Volatility = clamp01((*in.Volatility - minVol) / volSpan)
		}
		if in.DrawdownMagnitude != nil {
			c.Drawdown = clamp01(*in.DrawdownMagnitude)
		}
		if in.Sentiment != nil {
			c.Sentiment = clamp01((1 - *in.Sentiment) / 2)
		} else {
			missing[i] = true
		}
		if in.LiquidityRisk != nil && liqScale > 0 {
			c.Liquidity = clamp01(*in.LiquidityRisk / liqScale)
		}
		comps[i] = c
	}
	return comps, missing
}

// WeightedSumScorer is the transparent scoring path: a fixed-weight blend of
// the four normalized components.
type WeightedSumScorer struct {
	Weights config.RiskWeights
}

func NewWeightedSumScorer(weights config.RiskWeights) (*WeightedSumScorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &WeightedSumScorer{Weights: weights}, nil
}

func (s *WeightedSumScorer) Name() string { return "weighted_sum" }

func (s *WeightedSumScorer) Score(_ Input, comps Components) (float64, error) {
	score := s.Weights.Volatility*comps.Volatility +
		s.Weights.Drawdown*comps.Drawdown +
		s.Weights.Sentiment*comps.Sentiment +
		s.Weights.Liquidity*comps.Liquidity
	return clamp01(score), nil
}

// Attribution for the weighted path decomposes around the all-neutral
// baseline: each component contributes weight * (component - 0.5).
func (s *WeightedSumScorer) Attribution(in Input, comps Components, topN int) Attribution {
	drivers := []Driver{
		{Feature: "volatility", Value: comps.Volatility, Contribution: s.Weights.Volatility * (comps.Volatility - neutralComponent)},
		{Feature: "drawdown", Value: comps.Drawdown, Contribution: s.Weights.Drawdown * (comps.Drawdown - neutralComponent)},
		{Feature: "sentiment", Value: comps.Sentiment, Contribution: s.Weights.Sentiment * (comps.Sentiment - neutralComponent)},
		{Feature: "liquidity", Value: comps.Liquidity, Contribution: s.Weights.Liquidity * (comps.Liquidity - neutralComponent)},
	}
	return splitDrivers(in.Symbol, neutralComponent, drivers, topN)
}

// splitDrivers partitions contributions into up/down lists ordered by
// magnitude, keeping at most topN on each side.
func splitDrivers(symbol string, baseline float64, drivers []Driver, topN int) Attribution {
	sort.Slice(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].Contribution) > math.Abs(drivers[j].Contribution)
	})
	att := Attribution{Symbol: symbol, Baseline: baseline}
	for _, d := range drivers {
		if d.Contribution > 0 && len(att.Up) < topN {
			att.Up = append(att.Up, d)
		} else if d.Contribution < 0 && len(att.Down) < topN {
			att.Down = append(att.Down, d)
		}
	}
	return att
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
