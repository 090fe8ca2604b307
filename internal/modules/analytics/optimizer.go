package analytics

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/quantlab/riskcore/internal/domain"
	"github.com/quantlab/riskcore/pkg/logger"
)

// penaltyWeight scales the quadratic penalties that enforce the budget and
// target-return constraints inside the unconstrained solver.
const penaltyWeight = 1000.0

// frontierFeasibilityTol is the slack allowed when checking whether a target
// return is reachable by any long-only combination.
const frontierFeasibilityTol = 1e-9

// Allocation is one optimized long-only portfolio.
type Allocation struct {
	Weights        map[string]float64 `json:"weights"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	Sharpe         float64            `json:"sharpe"`
}

// FrontierPoint is one feasible point of the efficient frontier sweep.
type FrontierPoint struct {
	TargetReturn float64 `json:"target_return"`
	Allocation
}

// Optimizer solves long-only mean-variance problems with a penalty-method
// formulation: bounds are enforced by projection, the budget constraint by a
// quadratic penalty, and the result is renormalized to sum to one.
type Optimizer struct {
	log zerolog.Logger
}

func NewOptimizer(log zerolog.Logger) *Optimizer {
	return &Optimizer{log: logger.Component(log, "optimizer")}
}

// MinVariance minimizes w'Σw subject to the budget constraint.
func (o *Optimizer) MinVariance(symbols []string, mu []float64, sigma *mat.SymDense, riskFree float64) (*Allocation, error) {
	n := len(mu)
	if err := checkProblem(symbols, mu, sigma); err != nil {
		return nil, err
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xp := projectLongOnly(x)
			obj := quadForm(xp, sigma)
			obj += penaltyWeight * square(sum(xp)-1.0)
			return obj
		},
		Grad: func(grad, x []float64) {
			xp := projectLongOnly(x)
			budget := 2 * penaltyWeight * (sum(xp) - 1.0)
			for i := 0; i < n; i++ {
				grad[i] = budget
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma.At(i, j) * xp[j]
				}
			}
		},
	}

	x, err := o.solve(problem, n)
	if err != nil {
		return nil, err
	}
	return o.finalize(symbols, mu, sigma, x, riskFree), nil
}

// MaxSharpe maximizes (μ'w - r_f) / sqrt(w'Σw).
func (o *Optimizer) MaxSharpe(symbols []string, mu []float64, sigma *mat.SymDense, riskFree float64) (*Allocation, error) {
	n := len(mu)
	if err := checkProblem(symbols, mu, sigma); err != nil {
		return nil, err
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xp := projectLongOnly(x)
			ret := dot(mu, xp)
			stdDev := math.Sqrt(math.Max(quadForm(xp, sigma), 1e-10))
			obj := -(ret - riskFree) / stdDev
			obj += penaltyWeight * square(sum(xp)-1.0)
			return obj
		},
		Grad: func(grad, x []float64) {
			xp := projectLongOnly(x)
			ret := dot(mu, xp)
			variance := math.Max(quadForm(xp, sigma), 1e-10)
			stdDev := math.Sqrt(variance)
			budget := 2 * penaltyWeight * (sum(xp) - 1.0)
			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * sigma.At(i, j) * xp[j]
				}
				grad[i] = -mu[i]/stdDev + (ret-riskFree)*dVariance/(2*stdDev*variance) + budget
			}
		},
	}

	x, err := o.solve(problem, n)
	if err != nil {
		return nil, err
	}
	return o.finalize(symbols, mu, sigma, x, riskFree), nil
}

// EfficientReturn minimizes variance subject to hitting the target return.
// An unreachable target (above the best single asset, below the worst) is
// rejected with an InfeasibleTarget error before any solving.
func (o *Optimizer) EfficientReturn(symbols []string, mu []float64, sigma *mat.SymDense, target, riskFree float64) (*Allocation, error) {
	n := len(mu)
	if err := checkProblem(symbols, mu, sigma); err != nil {
		return nil, err
	}

	minMu, maxMu := minMax(mu)
	if target > maxMu+frontierFeasibilityTol || target < minMu-frontierFeasibilityTol {
		return nil, domain.NewInfeasibleTarget(target)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xp := projectLongOnly(x)
			obj := quadForm(xp, sigma)
			obj += penaltyWeight * square(sum(xp)-1.0)
			obj += penaltyWeight * square(dot(mu, xp)-target)
			return obj
		},
		Grad: func(grad, x []float64) {
			xp := projectLongOnly(x)
			budget := 2 * penaltyWeight * (sum(xp) - 1.0)
			retGap := 2 * penaltyWeight * (dot(mu, xp) - target)
			for i := 0; i < n; i++ {
				grad[i] = budget + retGap*mu[i]
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma.At(i, j) * xp[j]
				}
			}
		},
	}

	x, err := o.solve(problem, n)
	if err != nil {
		return nil, err
	}
	return o.finalize(symbols, mu, sigma, x, riskFree), nil
}

// Frontier sweeps target returns between the min-variance portfolio's
// return and the best single-asset return. Infeasible or non-converging
// targets are skipped, never fatal; the feasible points come back in target
// order.
func (o *Optimizer) Frontier(symbols []string, mu []float64, sigma *mat.SymDense, points int, riskFree float64) ([]FrontierPoint, error) {
	if points < 2 {
		return nil, domain.NewInvalidConfiguration("frontier needs at least two points")
	}
	minVar, err := o.MinVariance(symbols, mu, sigma, riskFree)
	if err != nil {
		return nil, err
	}

	_, maxMu := minMax(mu)
	low := minVar.ExpectedReturn
	if low > maxMu {
		low = maxMu
	}

	out := make([]FrontierPoint, 0, points)
	step := (maxMu - low) / float64(points-1)
	for i := 0; i < points; i++ {
		target := low + float64(i)*step
		alloc, err := o.EfficientReturn(symbols, mu, sigma, target, riskFree)
		if err != nil {
			o.log.Debug().Float64("target_return", target).Err(err).Msg("Skipping infeasible frontier point")
			continue
		}
		out = append(out, FrontierPoint{TargetReturn: target, Allocation: *alloc})
	}
	return out, nil
}

// EqualWeight is the 1/n baseline allocation, always reported alongside the
// optimized portfolios.
func EqualWeight(symbols []string, mu []float64, sigma *mat.SymDense, riskFree float64) *Allocation {
	n := len(symbols)
	x := make([]float64, n)
	for i := range x {
		x[i] = 1.0 / float64(n)
	}
	return buildAllocation(symbols, mu, sigma, x, riskFree)
}

// solve runs the minimizer with BFGS and retries with Nelder-Mead when BFGS
// errors or fails to converge.
func (o *Optimizer) solve(problem optimize.Problem, n int) ([]float64, error) {
	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, domain.NewNumericalInstability("optimization failed: " + err.Error())
		}
		if !converged(result.Status) {
			return nil, domain.NewNumericalInstability("optimization did not converge: " + result.Status.String())
		}
	}
	return result.X, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

// finalize projects the raw solution back to the long-only simplex and
// builds the allocation report.
func (o *Optimizer) finalize(symbols []string, mu []float64, sigma *mat.SymDense, x []float64, riskFree float64) *Allocation {
	xp := projectLongOnly(x)
	total := sum(xp)
	if total <= 1e-10 {
		// Degenerate solution, fall back to equal weight.
		for i := range xp {
			xp[i] = 1.0 / float64(len(xp))
		}
		total = 1.0
	}
	for i := range xp {
		xp[i] /= total
	}
	return buildAllocation(symbols, mu, sigma, xp, riskFree)
}

func buildAllocation(symbols []string, mu []float64, sigma *mat.SymDense, x []float64, riskFree float64) *Allocation {
	weights := make(map[string]float64, len(symbols))
	for i, sym := range symbols {
		weights[sym] = x[i]
	}
	ret := dot(mu, x)
	vol := math.Sqrt(math.Max(quadForm(x, sigma), 0))
	sharpe := 0.0
	if vol > 0 {
		sharpe = (ret - riskFree) / vol
	}
	return &Allocation{Weights: weights, ExpectedReturn: ret, Volatility: vol, Sharpe: sharpe}
}

func checkProblem(symbols []string, mu []float64, sigma *mat.SymDense) error {
	n := len(symbols)
	if n == 0 {
		return domain.NewInvalidConfiguration("optimization needs at least one symbol")
	}
	if len(mu) != n {
		return domain.NewInvalidConfiguration("expected returns do not match symbol count")
	}
	if sigma.SymmetricDim() != n {
		return domain.NewInvalidConfiguration("covariance matrix does not match symbol count")
	}
	return nil
}

func projectLongOnly(x []float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(0, math.Min(1, x[i]))
	}
	return proj
}

func quadForm(x []float64, sigma *mat.SymDense) float64 {
	var out float64
	for i := range x {
		for j := range x {
			out += x[i] * x[j] * sigma.At(i, j)
		}
	}
	return out
}

func dot(a, b []float64) float64 {
	var out float64
	for i := range a {
		out += a[i] * b[i]
	}
	return out
}

func sum(x []float64) float64 {
	var out float64
	for _, v := range x {
		out += v
	}
	return out
}

func square(v float64) float64 { return v * v }

func minMax(vals []float64) (float64, float64) {
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
