package reward

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownModel  = errors.New("unknown reward model")
	ErrInvalidParams = errors.New("invalid reward model parameters")
)

// EstimationError reports a posterior that cannot be sampled, together with
// the hyperparameters that produced it.
type EstimationError struct {
	Model       Kind
	Hyperparams map[string]float64
	Err         error
}

func (e *EstimationError) Error() string {
	keys := make([]string, 0, len(e.Hyperparams))
	for k := range e.Hyperparams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, e.Hyperparams[k]))
	}
	return fmt.Sprintf("%s estimation failed (%s): %v", e.Model, strings.Join(parts, ", "), e.Err)
}

func (e *EstimationError) Unwrap() error { return e.Err }

// NonConvergenceError is returned when the gamma alpha re-estimation loop
// runs out of iterations.
type NonConvergenceError struct {
	LastAlpha  float64
	Iterations int
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("alpha did not converge after %d iterations (last alpha %g)", e.Iterations, e.LastAlpha)
}
