// Package analytics provides portfolio-level risk and allocation tools:
// correlation matrices, historical VaR and expected shortfall, Monte Carlo
// price-path simulation and mean-variance optimization.
package analytics

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/riskcore/internal/domain"
)

// CovarianceResult is the annualized sample covariance of daily returns.
// Regularized is set when a ridge term had to be added to make the matrix
// positive definite; callers surface it so users know the numbers were
// conditioned.
type CovarianceResult struct {
	Symbols      []string    `json:"symbols"`
	Matrix       [][]float64 `json:"matrix"`
	Observations int         `json:"observations"`
	Regularized  bool        `json:"regularized"`
}

// maxRidgeAttempts bounds the ridge escalation; each attempt multiplies the
// ridge term by 10.
const maxRidgeAttempts = 6

// BuildCovariance computes the annualized covariance matrix from aligned
// daily return series, one column per symbol in the given order. Returns
// must all have equal length >= 2.
func BuildCovariance(symbols []string, returns map[string][]float64) (*CovarianceResult, error) {
	n := len(symbols)
	if n == 0 {
		return nil, domain.NewInvalidConfiguration("covariance needs at least one symbol")
	}
	obs := len(returns[symbols[0]])
	if obs < 2 {
		return nil, domain.NewInsufficientHistory("not enough aligned returns for covariance", 2, obs)
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

	data := mat.NewDense(obs, n, nil)
	for j, sym := range symbols {
		for i, v := range returns[sym] {
			data.Set(i, j, v)
		}
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, data, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, cov.At(i, j)*domain.TradingDaysPerYear)
		}
	}

	regularized, err := ensurePositiveDefinite(cov)
	if err != nil {
		return nil, err
	}

	out := &CovarianceResult{
		Symbols:      symbols,
		Matrix:       make([][]float64, n),
		Observations: obs,
		Regularized:  regularized,
	}
	for i := 0; i < n; i++ {
		out.Matrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out.Matrix[i][j] = cov.At(i, j)
		}
	}
	return out, nil
}

// ensurePositiveDefinite adds an escalating ridge to the diagonal until the
// matrix factorizes. Reports whether any ridge was needed.
func ensurePositiveDefinite(cov *mat.SymDense) (bool, error) {
	var chol mat.Cholesky
	if chol.Factorize(cov) {
		return false, nil
	}

	n := cov.SymmetricDim()
	var trace float64
	for i := 0; i < n; i++ {
		trace += cov.At(i, i)
	}
	ridge := 1e-8 * trace / float64(n)
	if ridge <= 0 {
		ridge = 1e-10
	}

	for attempt := 0; attempt < maxRidgeAttempts; attempt++ {
		for i := 0; i < n; i++ {
			cov.SetSym(i, i, cov.At(i, i)+ridge)
		}
		if chol.Factorize(cov) {
			return true, nil
		}
		ridge *= 10
	}
	return true, domain.NewNumericalInstability("covariance matrix is not positive definite even after regularization")
}

// Sym converts the result back into a gonum symmetric matrix.
func (c *CovarianceResult) Sym() *mat.SymDense {
	n := len(c.Symbols)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, c.Matrix[i][j])
		}
	}
	return out
}
