package analytics

import (
	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/riskcore/internal/domain"
)

// CorrelationResult is a Pearson correlation matrix over daily log returns.
type CorrelationResult struct {
	Symbols      []string    `json:"symbols"`
	Matrix       [][]float64 `json:"matrix"`
	Observations int         `json:"observations"`
}

// BuildCorrelation computes the pairwise Pearson correlation of the aligned
// return series. The diagonal is set to exactly 1.0 and the matrix is
// mirrored from the upper triangle, so symmetry holds by construction.
func BuildCorrelation(symbols []string, returns map[string][]float64) (*CorrelationResult, error) {
	n := len(symbols)
	if n < 2 {
		return nil, domain.NewInvalidConfiguration("correlation needs at least two symbols")
	}
	obs := len(returns[symbols[0]])
	if obs < 2 {
		return nil, domain.NewInsufficientHistory("not enough aligned returns for correlation", 2, obs)
	}
	for _, sym := range symbols {
		r, ok := returns[sym]
		if !ok {
			return nil, domain.NewInvalidConfiguration("missing return series for " + sym)
		}
		if len(r) != obs {
			return nil, domain.NewInvalidConfiguration("return series for " + sym + " not aligned")
		}
	}

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := stat.Correlation(returns[symbols[i]], returns[symbols[j]], nil)
			matrix[i][j] = c
			matrix[j][i] = c
		}
	}

	return &CorrelationResult{Symbols: symbols, Matrix: matrix, Observations: obs}, nil
}
