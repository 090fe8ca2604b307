package scoring

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/internal/modules/features"
)

func testModel() *Model {
	return &Model{
		Features:     []string{"volatility_21d", "max_drawdown_63d", "rsi_14"},
		Coefficients: []float64{2.0, -3.0, 0.01},
		Intercept:    -1.0,
		FeatureMeans: map[string]float64{
			"volatility_21d":   0.25,
			"max_drawdown_63d": -0.10,
			"rsi_14":           50,
		},
	}
}

func TestModelValidate(t *testing.T) {
	require.NoError(t, testModel().Validate())

	bad := testModel()
	bad.Coefficients = bad.Coefficients[:2]
	err := bad.Validate()
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))

	noMean := testModel()
	delete(noMean.FeatureMeans, "rsi_14")
	require.Error(t, noMean.Validate())

	empty := &Model{}
	require.Error(t, empty.Validate())
}

func TestLoadModelFromArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classifier.json")
	data, err := json.Marshal(testModel())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	m, err := LoadModel(path)
	require.NoError(t, err)
	assert.Len(t, m.Features, 3)

	_, err = LoadModel(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestClassifierScore(t *testing.T) {
	scorer := NewClassifierScorer(testModel())

	vec := &features.FeatureVector{
		Volatility21:  fptr(0.5),
		MaxDrawdown63: fptr(-0.3),
		RSI14:         fptr(70),
	}
	score, err := scorer.Score(Input{Symbol: "X", Features: vec}, Components{})
	require.NoError(t, err)

	logit := -1.0 + 2.0*0.5 + (-3.0)*(-0.3) + 0.01*70
	assert.InDelta(t, 1/(1+math.Exp(-logit)), score, 1e-12)
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)
}

func TestClassifierScoreRequiresFeatures(t *testing.T) {
	scorer := NewClassifierScorer(testModel())

	_, err := scorer.Score(Input{Symbol: "X"}, Components{})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))
}

func TestClassifierMissingFeatureUsesTrainingMean(t *testing.T) {
	scorer := NewClassifierScorer(testModel())

	// rsi_14 missing: it takes the training mean, so both scores must match.
	full := &features.FeatureVector{Volatility21: fptr(0.5), MaxDrawdown63: fptr(-0.3), RSI14: fptr(50)}
	partial := &features.FeatureVector{Volatility21: fptr(0.5), MaxDrawdown63: fptr(-0.3)}

	a, err := scorer.Score(Input{Features: full}, Components{})
	require.NoError(t, err)
	b, err := scorer.Score(Input{Features: partial}, Components{})
	require.NoError(t, err)
	assert.InDelta(t, a, b, 1e-12)
}

func TestClassifierCalibration(t *testing.T) {
	m := testModel()
	m.Calibration = &Calibration{Slope: 0.5, Intercept: 0.1}
	scorer := NewClassifierScorer(m)

	vec := &features.FeatureVector{Volatility21: fptr(0.5), MaxDrawdown63: fptr(-0.3), RSI14: fptr(70)}
	score, err := scorer.Score(Input{Features: vec}, Components{})
	require.NoError(t, err)

	logit := -1.0 + 2.0*0.5 + (-3.0)*(-0.3) + 0.01*70
	assert.InDelta(t, 1/(1+math.Exp(-(0.5*logit+0.1))), score, 1e-12)
}

func TestClassifierAttribution(t *testing.T) {
	scorer := NewClassifierScorer(testModel())

	vec := &features.FeatureVector{
		Volatility21:  fptr(0.45), // above mean, positive coef: risk up
		MaxDrawdown63: fptr(-0.4), // deeper than mean, negative coef: risk up
		RSI14:         fptr(50),   // exactly the mean: zero contribution, dropped
	}
	att := scorer.Attribution(Input{Symbol: "X", Features: vec}, Components{}, 5)

	assert.Equal(t, "X", att.Symbol)
	require.Len(t, att.Up, 2)
	assert.Empty(t, att.Down)

	// Ordered by |contribution|: drawdown contributes -3 * (-0.3) = 0.9,
	// volatility 2 * 0.2 = 0.4.
	assert.Equal(t, "max_drawdown_63d", att.Up[0].Feature)
	assert.InDelta(t, 0.9, att.Up[0].Contribution, 1e-12)
	assert.Equal(t, "volatility_21d", att.Up[1].Feature)
	assert.InDelta(t, 0.4, att.Up[1].Contribution, 1e-12)

	// Baseline is the probability of the mean vector.
	meanLogit := -1.0 + 2.0*0.25 + (-3.0)*(-0.10) + 0.01*50
	assert.InDelta(t, 1/(1+math.Exp(-meanLogit)), att.Baseline, 1e-12)
}
