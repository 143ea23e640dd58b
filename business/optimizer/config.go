package optimizer

import (
	"context"
	"time"

	"prebidOptimizer/domain"
)

const (
	DefaultMinWins        = 5
	DefaultMinProbability = 0.025
)

type Config struct {
	ConfigID   string
	Candidates map[string][]any
	// BucketSize is the number of simulated trials per run.
	BucketSize int
	// MinProbability is the exploration floor every action keeps.
	MinProbability float64
	// MinWins scales the whole-window win threshold (numActions * MinWins)
	// and gates the latest-hour log-revenue moments.
	MinWins int
	Seed    uint64
	// Parallelism > 1 samples actions concurrently. Results do not depend on it.
	Parallelism int
}

// DataSource returns the auction outcomes of one config id in [start, end).
type DataSource interface {
	FetchObservations(ctx context.Context, configID string, keys []string, start, end time.Time) ([]domain.Observation, error)
}
