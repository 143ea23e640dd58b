package reward

import (
	"errors"
	"math"
	"math/rand/v2"

	"prebidOptimizer/domain"
	"prebidOptimizer/pkg/logger"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

type BetaLogNormalParams struct {
	// Beta prior on the win rate.
	PriorWinA float64
	PriorWinB float64
	// Normal-inverse-gamma prior on log(pubrev+1) of winning requests.
	Mu0 float64
	V0  float64
	B0  float64

	MinWins int
	Epsilon float64
}

func DefaultBetaLogNormalParams() BetaLogNormalParams {
	return BetaLogNormalParams{
		PriorWinA: 2,
		PriorWinB: 2,
		Mu0:       math.Log(1e5),
		V0:        2,
		B0:        1,
		MinWins:   DefaultMinWins,
		Epsilon:   DefaultEpsilon,
	}
}

func (p BetaLogNormalParams) withDefaults() BetaLogNormalParams {
	d := DefaultBetaLogNormalParams()
	if p.PriorWinA <= 0 {
		p.PriorWinA = d.PriorWinA
	}
	if p.PriorWinB <= 0 {
		p.PriorWinB = d.PriorWinB
	}
	if p.Mu0 == 0 {
		p.Mu0 = d.Mu0
	}
	if p.V0 <= 0 {
		p.V0 = d.V0
	}
	if p.B0 <= 0 {
		p.B0 = d.B0
	}
	if p.MinWins <= 0 {
		p.MinWins = d.MinWins
	}
	if p.Epsilon <= 0 {
		p.Epsilon = d.Epsilon
	}
	return p
}

type BetaLogNormalPosterior struct {
	BetaA float64
	BetaB float64
	Mu    float64
	V     float64
	A     float64
	B     float64
}

func (h BetaLogNormalPosterior) Map() map[string]float64 {
	return map[string]float64{
		"beta_a": h.BetaA,
		"beta_b": h.BetaB,
		"mu":     h.Mu,
		"v":      h.V,
		"a":      h.A,
		"b":      h.B,
	}
}

// BetaLogNormalModel models the win rate with a Beta posterior and the
// revenue of winning requests with a log-normal whose parameters follow a
// normal-inverse-gamma posterior. The reward is their product.
type BetaLogNormalModel struct {
	params  BetaLogNormalParams
	verbose bool
}

var _ Model = (*BetaLogNormalModel)(nil)

func NewBetaLogNormal(params BetaLogNormalParams, verbose bool) *BetaLogNormalModel {
	return &BetaLogNormalModel{params: params.withDefaults(), verbose: verbose}
}

func (m *BetaLogNormalModel) PosteriorHyperparams(obs []domain.Observation) BetaLogNormalPosterior {
	p := m.params

	logRev := make([]float64, 0, len(obs))
	for _, o := range obs {
		if o.PubRev > 0 {
			logRev = append(logRev, math.Log(o.PubRev+1))
		}
	}
	k := len(logRev)
	kf := float64(k)

	// beta
	betaA := p.PriorWinA + kf
	betaB := p.PriorWinB + float64(len(obs)-k)

	// normal-inverse-gamma; the shape update uses integer halves
	mean, std := stat.MeanStdDev(logRev, nil)
	a0 := int(p.V0) / 2
	mu := (p.V0*p.Mu0 + kf*mean) / (p.V0 + kf)
	v := p.V0 + kf
	a := float64(a0 + k/2)
	b := p.B0 + 0.5*kf*std*std + (kf*p.V0)/(kf+p.V0)*((mean-p.Mu0)*(mean-p.Mu0)/2)

	return BetaLogNormalPosterior{BetaA: betaA, BetaB: betaB, Mu: mu, V: v, A: a, B: b}
}

func (m *BetaLogNormalModel) RewardDistribution(obs []domain.Observation, n int, globalMean float64, rng *rand.Rand) ([]float64, error) {
	if countWinners(obs) < m.params.MinWins {
		logger.Debug("Not enough wins, returning small random rewards", "model", KindBetaLogNormal, "min_wins", m.params.MinWins)
		return smallRewards(n, m.params.Epsilon, globalMean, rng), nil
	}

	h := m.PosteriorHyperparams(obs)
	if !finitePositive(h.BetaA, h.BetaB, h.V, h.A, h.B) || math.IsNaN(h.Mu) || math.IsInf(h.Mu, 0) {
		return nil, &EstimationError{Model: KindBetaLogNormal, Hyperparams: h.Map(), Err: errors.New("degenerate posterior")}
	}

	winRate := m.winRates(h, n, rng)
	revenue := m.revenues(h, n, rng)

	out := make([]float64, n)
	for i := range out {
		out[i] = winRate[i]*revenue[i] - globalMean
	}
	if !allFinite(out) {
		return nil, &EstimationError{Model: KindBetaLogNormal, Hyperparams: h.Map(), Err: errors.New("non-finite reward sample")}
	}
	return out, nil
}

func (m *BetaLogNormalModel) winRates(h BetaLogNormalPosterior, n int, rng *rand.Rand) []float64 {
	dist := distuv.Beta{Alpha: h.BetaA, Beta: h.BetaB, Src: rng}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	if m.verbose {
		logger.Debug("Win rate posterior",
			"num_wins", h.BetaA,
			"num_requests", h.BetaA+h.BetaB,
			"mean", dist.Mean(),
			"std", dist.StdDev(),
		)
	}
	return out
}

// revenues draws the mean revenue per win: T ~ Gamma(a, rate b),
// X ~ N(mu, 1/sqrt(v*T)), mean = exp(X + 1/(2T)).
func (m *BetaLogNormalModel) revenues(h BetaLogNormalPosterior, n int, rng *rand.Rand) []float64 {
	precision := distuv.Gamma{Alpha: h.A, Beta: h.B, Src: rng}
	out := make([]float64, n)
	var sumX, sumT float64
	for i := range out {
		t := precision.Rand()
		x := distuv.Normal{Mu: h.Mu, Sigma: 1 / math.Sqrt(h.V*t), Src: rng}.Rand()
		out[i] = math.Exp(x + 1/(2*t))
		sumX += x
		sumT += t
	}
	if m.verbose && n > 0 {
		meanX, meanT := sumX/float64(n), sumT/float64(n)
		logger.Debug("Log pubrev posterior",
			"log_pubrev_mean", meanX,
			"log_pubrev_sem", math.Sqrt(1/(h.V*meanT)),
			"pubrev_mean", math.Exp(meanX+1/(2*meanT)),
		)
	}
	return out
}

func (m *BetaLogNormalModel) Kind() Kind { return KindBetaLogNormal }
