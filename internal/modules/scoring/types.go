// Package scoring computes composite risk scores for a universe of symbols.
// Two scorer implementations sit behind one interface: a transparent
// weighted sum over normalized risk components, and a calibrated logistic
// classifier loaded from a trained model artifact.
package scoring

import (
	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/internal/modules/features"
)

// Input is the raw per-symbol material for one scoring pass. Optional
// fields are nil when the underlying data is missing; the normalization
// step substitutes a neutral 0.5 and (for sentiment) flags the substitution.
type Input struct {
	Symbol string
	Date   string

	Volatility        *float64 // annualized 21d volatility
	DrawdownMagnitude *float64 // trailing max drawdown as a positive fraction
	Sentiment         *float64 // average news sentiment in [-1, 1]
	LiquidityRisk     *float64 // volume coefficient of variation (20d)

	Features *features.FeatureVector // full vector, used by the classifier path
}

// Components are the four normalized risk components, each in [0, 1] with 1
// meaning maximum risk.
type Components struct {
	Volatility float64 `json:"volatility"`
	Drawdown   float64 `json:"drawdown"`
	Sentiment  float64 `json:"sentiment"`
	Liquidity  float64 `json:"liquidity"`
}

// Result is one scored symbol.
type Result struct {
	Symbol           string           `json:"symbol"`
	Date             string           `json:"date"`
	Score            float64          `json:"risk_score"`
	Level            domain.RiskLevel `json:"risk_level"`
	Rank             int              `json:"risk_rank"`
	Components       Components       `json:"components"`
	SentimentMissing bool             `json:"sentiment_missing"`
	Drivers          string           `json:"risk_drivers"`
}

// Driver is one feature's contribution to the headline score.
type Driver struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Attribution decomposes a score into additive per-feature contributions
// relative to a baseline, split into the strongest risk-raising and
// risk-lowering drivers.
type Attribution struct {
	Symbol   string   `json:"symbol"`
	Baseline float64  `json:"baseline"`
	Up       []Driver `json:"risk_drivers_up"`
	Down     []Driver `json:"risk_drivers_down"`
}

// Scorer produces the headline risk score and its attribution for one
// symbol, given the normalized components computed against the universe
// snapshot.
type Scorer interface {
	Name() string
	Score(in Input, comps Components) (float64, error)
	Attribution(in Input, comps Components, topN int) Attribution
}
