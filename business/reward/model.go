package reward

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"prebidOptimizer/domain"
)

type Kind string

const (
	KindDefault       Kind = "default"
	KindBetaLogNormal Kind = "beta_lognormal"
	KindGamma         Kind = "gamma"
)

const (
	DefaultMinWins = 5
	DefaultEpsilon = 1e-2
)

// Model turns the observations of one action in one hour into n posterior
// reward samples, centred on globalMean.
type Model interface {
	RewardDistribution(obs []domain.Observation, n int, globalMean float64, rng *rand.Rand) ([]float64, error)
}

type Spec struct {
	Kind          Kind
	BetaLogNormal BetaLogNormalParams
	Gamma         GammaParams
	Verbose       bool
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "", KindDefault:
		return KindDefault, nil
	case KindBetaLogNormal, KindGamma:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// New resolves spec into a model. The default kind is the beta/log-normal model.
func New(spec Spec) (Model, error) {
	switch spec.Kind {
	case "", KindDefault, KindBetaLogNormal:
		return NewBetaLogNormal(spec.BetaLogNormal, spec.Verbose), nil
	case KindGamma:
		return NewGamma(spec.Gamma, spec.Verbose)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, spec.Kind)
}

func countWinners(obs []domain.Observation) int {
	n := 0
	for _, o := range obs {
		if o.PubRev > 0 {
			n++
		}
	}
	return n
}

// smallRewards is what a model returns when it has too few winners to fit.
func smallRewards(n int, epsilon, globalMean float64, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = epsilon*rng.Float64() - globalMean
	}
	return out
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func finitePositive(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
			return false
		}
	}
	return true
}
