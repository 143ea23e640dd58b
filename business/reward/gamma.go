package reward

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"prebidOptimizer/domain"
	"prebidOptimizer/pkg/logger"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

type GammaParams struct {
	// Alpha0 seeds the empirical-Bayes loop.
	Alpha0 float64
	// AlphaStart is the starting point of each 1-D alpha minimisation.
	AlphaStart    float64
	Tolerance     float64
	MaxIterations int

	// Gamma prior on the rate.
	PriorA float64
	PriorB float64

	GridPoints int
	// SupportExponent is the log-density level that bounds the rate support.
	SupportExponent   float64
	IntegralTolerance float64

	MinWins int
	Epsilon float64
}

func DefaultGammaParams() GammaParams {
	return GammaParams{
		Alpha0:            0.08,
		AlphaStart:        0.05,
		Tolerance:         1e-5,
		MaxIterations:     100,
		PriorA:            2,
		PriorB:            2,
		GridPoints:        5000,
		SupportExponent:   -2,
		IntegralTolerance: 5e-2,
		MinWins:           DefaultMinWins,
		Epsilon:           DefaultEpsilon,
	}
}

func (p GammaParams) withDefaults() GammaParams {
	d := DefaultGammaParams()
	if p.Alpha0 == 0 {
		p.Alpha0 = d.Alpha0
	}
	if p.AlphaStart <= 0 {
		p.AlphaStart = d.AlphaStart
	}
	if p.Tolerance <= 0 {
		p.Tolerance = d.Tolerance
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.PriorA <= 0 {
		p.PriorA = d.PriorA
	}
	if p.PriorB <= 0 {
		p.PriorB = d.PriorB
	}
	if p.GridPoints < 2 {
		p.GridPoints = d.GridPoints
	}
	if p.SupportExponent == 0 {
		p.SupportExponent = d.SupportExponent
	}
	if p.IntegralTolerance <= 0 {
		p.IntegralTolerance = d.IntegralTolerance
	}
	if p.MinWins <= 0 {
		p.MinWins = d.MinWins
	}
	if p.Epsilon <= 0 {
		p.Epsilon = d.Epsilon
	}
	return p
}

type GammaPosterior struct {
	A          float64
	B          float64
	Alpha      float64
	Iterations int
}

func (h GammaPosterior) Map() map[string]float64 {
	return map[string]float64{"a": h.A, "b": h.B, "alpha": h.Alpha}
}

// GammaModel models revenue per request, in CPM dollars, as Gamma(alpha, rate)
// with alpha estimated by empirical Bayes and a non-conjugate posterior on the
// rate that is sampled through a tabulated inverse CDF.
type GammaModel struct {
	params  GammaParams
	verbose bool
}

var _ Model = (*GammaModel)(nil)

func NewGamma(params GammaParams, verbose bool) (*GammaModel, error) {
	params = params.withDefaults()
	if !finitePositive(params.Alpha0) {
		return nil, fmt.Errorf("%w: alpha0 must be positive, got %g", ErrInvalidParams, params.Alpha0)
	}
	return &GammaModel{params: params, verbose: verbose}, nil
}

// CPM converts a publisher revenue value into CPM dollars.
func CPM(pubrev float64) float64 {
	return (pubrev + 1) / 1e6
}

func (m *GammaModel) PosteriorHyperparams(obs []domain.Observation) (GammaPosterior, error) {
	p := m.params
	n := len(obs)

	var sumX, sumLogX float64
	for _, o := range obs {
		x := CPM(o.PubRev)
		sumX += x
		sumLogX += math.Log(x)
	}

	alpha := p.Alpha0
	prev := math.NaN()
	var a, b float64
	for iter := 1; ; iter++ {
		if iter > p.MaxIterations {
			return GammaPosterior{}, &NonConvergenceError{LastAlpha: alpha, Iterations: p.MaxIterations}
		}

		a = alpha*float64(n) + p.PriorA
		b = p.PriorB / (1 + p.PriorB*sumX)
		optimalBeta := (a - 1) * b

		next, err := optimalAlpha(sumLogX, n, optimalBeta, p.AlphaStart)
		if err != nil {
			return GammaPosterior{}, &EstimationError{
				Model:       KindGamma,
				Hyperparams: map[string]float64{"a": a, "b": b, "alpha": alpha, "beta": optimalBeta},
				Err:         err,
			}
		}
		alpha = next

		if iter > 1 && math.Abs(prev-alpha) < p.Tolerance {
			if m.verbose {
				logger.Debug("Optimized alpha", "alpha0", p.Alpha0, "alpha", alpha, "iterations", iter)
			}
			return GammaPosterior{A: a, B: b, Alpha: alpha, Iterations: iter}, nil
		}
		prev = alpha
	}
}

// optimalAlpha maximises the marginal log-likelihood of alpha for a fixed
// rate. The search runs on log(alpha) to keep alpha positive.
func optimalAlpha(sumLogX float64, n int, beta, start float64) (float64, error) {
	if !finitePositive(beta) {
		return 0, fmt.Errorf("rate must be positive, got %g", beta)
	}
	c := float64(n + 1)
	logBeta := math.Log(beta)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha := math.Exp(x[0])
			lg, _ := math.Lgamma(alpha)
			return -((alpha-1)*sumLogX + alpha*c*logBeta - c*lg)
		},
		Grad: func(grad, x []float64) {
			alpha := math.Exp(x[0])
			grad[0] = -(sumLogX + c*logBeta - c*mathext.Digamma(alpha)) * alpha
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-9,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 50,
		},
		MajorIterations: 500,
	}

	res, err := optimize.Minimize(problem, []float64{math.Log(start)}, settings, &optimize.BFGS{})
	if res == nil {
		return 0, fmt.Errorf("minimize alpha: %w", err)
	}
	alpha := math.Exp(res.X[0])
	if !finitePositive(alpha) {
		return 0, fmt.Errorf("minimize alpha: non-finite result (status %v)", res.Status)
	}
	if err != nil {
		// the line search can stall right at the optimum; the best location is still usable
		logger.Debug("Alpha minimisation stopped early", "status", res.Status, "error", err)
	}
	return alpha, nil
}

// rateDensity is the Stirling-form posterior density of the rate.
type rateDensity struct {
	a, b float64
}

func (d rateDensity) exponent(beta float64) float64 {
	return (d.a-1)*math.Log(beta*math.E/(d.a-1)) - beta/d.b - d.a*math.Log(d.b)
}

func (d rateDensity) pdf(beta float64) float64 {
	return math.Exp(d.exponent(beta)) / math.Sqrt(2*math.Pi*(d.a-1))
}

func (d rateDensity) mode() float64 {
	return (d.a - 1) * d.b
}

// support brackets the rate where the log density stays above level, one
// root on each side of the mode.
func (d rateDensity) support(level float64) (lo, hi float64, err error) {
	mode := d.mode()
	g := func(beta float64) float64 { return d.exponent(beta) - level }
	// only reachable with custom priors: the default PriorB keeps b <= 2, so the peak stays above -log(2)
	if g(mode) <= 0 {
		return 0, 0, fmt.Errorf("density peak %g is below level %g", d.exponent(mode), level)
	}

	left := mode
	for i := 0; g(left) > 0; i++ {
		if i > 1000 {
			return 0, 0, errors.New("lower support bound not bracketed")
		}
		left /= 2
	}
	right := mode
	for i := 0; g(right) > 0; i++ {
		if i > 1000 || math.IsInf(right, 1) {
			return 0, 0, errors.New("upper support bound not bracketed")
		}
		right *= 2
	}
	return bisect(g, left, mode), bisect(g, mode, right), nil
}

// bisect finds a sign change of g inside [lo, hi].
func bisect(g func(float64) float64, lo, hi float64) float64 {
	glo := g(lo)
	for i := 0; i < 200; i++ {
		mid := lo + (hi-lo)/2
		if mid == lo || mid == hi {
			break
		}
		gm := g(mid)
		if (gm > 0) == (glo > 0) {
			lo, glo = mid, gm
		} else {
			hi = mid
		}
	}
	return lo + (hi-lo)/2
}

// rateTable is the tabulated CDF of the rate posterior.
type rateTable struct {
	betas []float64
	cdf   []float64
}

func newRateTable(d rateDensity, lo, hi float64, points int) rateTable {
	betas := floats.Span(make([]float64, points), lo, hi)
	pdf := make([]float64, points)
	for i, beta := range betas {
		pdf[i] = d.pdf(beta)
	}
	cdf := floats.CumSum(make([]float64, points), pdf)
	floats.Scale((hi-lo)/float64(points), cdf)
	return rateTable{betas: betas, cdf: cdf}
}

func (t rateTable) draw(rng *rand.Rand) float64 {
	idx := sort.SearchFloat64s(t.cdf, rng.Float64())
	if idx == len(t.cdf) {
		return t.betas[len(t.betas)-1]
	}
	return t.betas[idx]
}

func (m *GammaModel) RewardDistribution(obs []domain.Observation, n int, globalMean float64, rng *rand.Rand) ([]float64, error) {
	p := m.params

	if countWinners(obs) < p.MinWins {
		logger.Debug("Not enough wins, returning small random rewards", "model", KindGamma, "min_wins", p.MinWins)
		return smallRewards(n, p.Epsilon, globalMean, rng), nil
	}

	h, err := m.PosteriorHyperparams(obs)
	if err != nil {
		return nil, err
	}
	if !finitePositive(h.A-1, h.B, h.Alpha) {
		return nil, &EstimationError{Model: KindGamma, Hyperparams: h.Map(), Err: errors.New("degenerate posterior")}
	}

	density := rateDensity{a: h.A, b: h.B}
	lo, hi, err := density.support(p.SupportExponent)
	if err != nil {
		return nil, &EstimationError{Model: KindGamma, Hyperparams: h.Map(), Err: err}
	}

	if diff := math.Abs(quad.Fixed(density.pdf, lo, hi, 100, nil, 0) - 1); diff > p.IntegralTolerance {
		logger.Warn("Rate posterior does not integrate to 1", "diff", diff, "beta_min", lo, "beta_max", hi)
	}

	table := newRateTable(density, lo, hi, p.GridPoints)

	out := make([]float64, n)
	for i := range out {
		out[i] = h.Alpha/table.draw(rng) - globalMean
	}
	if !allFinite(out) {
		return nil, &EstimationError{Model: KindGamma, Hyperparams: h.Map(), Err: errors.New("non-finite reward sample")}
	}

	if m.verbose {
		mean, std := stat.MeanStdDev(out, nil)
		logger.Debug("Gamma reward posterior",
			"beta_min", lo,
			"beta_max", hi,
			"expected_pubrev_mean", mean+globalMean,
			"pubrev_mean_std", std,
		)
	}
	return out, nil
}

func (m *GammaModel) Kind() Kind { return KindGamma }
