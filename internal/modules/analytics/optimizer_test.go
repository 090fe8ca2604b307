package analytics

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/quantlab/riskcore/internal/domain"
)

// twoAssetProblem: a low-risk/low-return asset and a high-risk/high-return
// asset with no correlation.
func twoAssetProblem() ([]string, []float64, *mat.SymDense) {
	symbols := []string{"SAFE", "RISKY"}
	mu := []float64{0.05, 0.12}
	sigma := mat.NewSymDense(2, []float64{
		0.01, 0.0,
		0.0, 0.09,
	})
	return symbols, mu, sigma
}

func checkValidWeights(t *testing.T, alloc *Allocation) {
	t.Helper()
	var sum float64
	for _, w := range alloc.Weights {
		assert.GreaterOrEqual(t, w, -1e-9)
		assert.LessOrEqual(t, w, 1.0+1e-9)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestMinVarianceFavorsLowVolAsset(t *testing.T) {
	symbols, mu, sigma := twoAssetProblem()
	opt := NewOptimizer(zerolog.Nop())

	alloc, err := opt.MinVariance(symbols, mu, sigma, 0.02)
	require.NoError(t, err)
	checkValidWeights(t, alloc)

	// Uncorrelated min-variance weights are proportional to 1/variance:
	// 0.09/(0.01+0.09) = 0.9 on the safe asset.
	assert.InDelta(t, 0.9, alloc.Weights["SAFE"], 0.05)
	assert.Less(t, alloc.Volatility, 0.12)
}

func TestMaxSharpeBeatsEqualWeight(t *testing.T) {
	symbols, mu, sigma := twoAssetProblem()
	opt := NewOptimizer(zerolog.Nop())

	maxSharpe, err := opt.MaxSharpe(symbols, mu, sigma, 0.02)
	require.NoError(t, err)
	checkValidWeights(t, maxSharpe)

	equal := EqualWeight(symbols, mu, sigma, 0.02)
	assert.GreaterOrEqual(t, maxSharpe.Sharpe, equal.Sharpe-1e-6)
}

func TestEfficientReturnHitsTarget(t *testing.T) {
	symbols, mu, sigma := twoAssetProblem()
	opt := NewOptimizer(zerolog.Nop())

	target := 0.08
	alloc, err := opt.EfficientReturn(symbols, mu, sigma, target, 0.02)
	require.NoError(t, err)
	checkValidWeights(t, alloc)
	assert.InDelta(t, target, alloc.ExpectedReturn, 0.01)
}

func TestEfficientReturnInfeasibleTarget(t *testing.T) {
	symbols, mu, sigma := twoAssetProblem()
	opt := NewOptimizer(zerolog.Nop())

	// No long-only portfolio can return more than the best single asset.
	_, err := opt.EfficientReturn(symbols, mu, sigma, 0.50, 0.02)
	require.Error(t, err)
	assert.Equal(t, domain.KindInfeasibleTarget, domain.KindOf(err))

	_, err = opt.EfficientReturn(symbols, mu, sigma, -0.20, 0.02)
	require.Error(t, err)
	assert.Equal(t, domain.KindInfeasibleTarget, domain.KindOf(err))
}

func TestFrontierSkipsNothingWhenAllFeasible(t *testing.T) {
	symbols, mu, sigma := twoAssetProblem()
	opt := NewOptimizer(zerolog.Nop())

	frontier, err := opt.Frontier(symbols, mu, sigma, 8, 0.02)
	require.NoError(t, err)
	require.NotEmpty(t, frontier)

	// Targets ascend and every point carries valid weights.
	for i, pt := range frontier {
		checkValidWeights(t, &pt.Allocation)
		if i > 0 {
			assert.Greater(t, pt.TargetReturn, frontier[i-1].TargetReturn)
		}
	}

	// The sweep ends at the best single-asset return.
	last := frontier[len(frontier)-1]
	assert.InDelta(t, 0.12, last.TargetReturn, 1e-9)
}

func TestOptimizerRejectsMismatchedInputs(t *testing.T) {
	opt := NewOptimizer(zerolog.Nop())
	sigma := mat.NewSymDense(2, []float64{0.01, 0, 0, 0.02})

	_, err := opt.MinVariance([]string{"A"}, []float64{0.05, 0.06}, sigma, 0)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))

	_, err = opt.MinVariance(nil, nil, mat.NewSymDense(1, []float64{0.01}), 0)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.KindOf(err))
}

func TestEqualWeightAllocation(t *testing.T) {
	symbols, mu, sigma := twoAssetProblem()

	alloc := EqualWeight(symbols, mu, sigma, 0.02)
	assert.InDelta(t, 0.5, alloc.Weights["SAFE"], 1e-12)
	assert.InDelta(t, 0.5, alloc.Weights["RISKY"], 1e-12)
	assert.InDelta(t, 0.085, alloc.ExpectedReturn, 1e-12)
}
