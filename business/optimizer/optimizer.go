package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"prebidOptimizer/business/reward"
	"prebidOptimizer/domain"
	"prebidOptimizer/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Optimizer runs Thompson sampling over every candidate combination of one
// config id and turns the simulated trials into a win probability per action.
type Optimizer struct {
	cfg       Config
	source    DataSource
	model     reward.Model
	modelName string

	keys    []string
	actions []domain.ConfigCombo
	// several actions share a key only when candidate lists repeat a value
	index map[string][]int
	boost float64
}

func New(cfg Config, source DataSource, model reward.Model) (*Optimizer, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: data source is required", ErrInvalidConfig)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: reward model is required", ErrInvalidConfig)
	}
	if cfg.BucketSize <= 0 {
		return nil, fmt.Errorf("%w: bucket size must be positive, got %d", ErrInvalidConfig, cfg.BucketSize)
	}
	if cfg.MinWins <= 0 {
		cfg.MinWins = DefaultMinWins
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	actions := ConfigCombos(cfg.Candidates)
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: no config combinations for %q", ErrInvalidConfig, cfg.ConfigID)
	}

	numActions := float64(len(actions))
	if cfg.MinProbability < 0 || cfg.MinProbability*numActions >= 1 {
		return nil, fmt.Errorf("%w: min probability %g must be in [0, 1/%d)", ErrInvalidConfig, cfg.MinProbability, len(actions))
	}

	keys := ConfigKeys(cfg.Candidates)
	index := make(map[string][]int, len(actions))
	for i, a := range actions {
		k := a.Key(keys)
		index[k] = append(index[k], i)
	}

	modelName := "custom"
	if k, ok := model.(interface{ Kind() reward.Kind }); ok {
		modelName = string(k.Kind())
	}

	return &Optimizer{
		cfg:       cfg,
		source:    source,
		model:     model,
		modelName: modelName,
		keys:      keys,
		actions:   actions,
		index:     index,
		boost:     float64(cfg.BucketSize) * cfg.MinProbability / (1 - numActions*cfg.MinProbability),
	}, nil
}

func (o *Optimizer) Actions() []domain.ConfigCombo { return o.actions }

func (o *Optimizer) Keys() []string { return o.keys }

// Boost is the pseudo-win count added to every action during aggregation.
func (o *Optimizer) Boost() float64 { return o.boost }

func (o *Optimizer) GenerateDistributions(ctx context.Context, start, end time.Time) (res *domain.Distributions, err error) {
	started := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case res.InsufficientData:
			outcome = "insufficient_data"
		}
		OptimizerRunsTotal.WithLabelValues(o.modelName, outcome).Inc()
		OptimizerRunDuration.WithLabelValues(o.modelName).Observe(time.Since(started).Seconds())
	}()

	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	numHours := int(math.Ceil(end.Sub(start).Hours()))

	// 1) fetch
	obs, err := o.source.FetchObservations(ctx, o.cfg.ConfigID, o.keys, start, end)
	if err != nil {
		return nil, err
	}

	// 2) data check
	part := o.partition(obs, numHours)
	if part.dropped > 0 {
		logger.Warn("Dropped observations outside the run window",
			"config_id", o.cfg.ConfigID,
			"dropped", part.dropped,
			"num_hours", numHours,
		)
	}
	logger.Debug("Fetched observations", "config_id", o.cfg.ConfigID, "rows", part.rows, "wins", part.wins)

	if part.rows == 0 || part.wins < len(o.actions)*o.cfg.MinWins {
		logger.Info("Not enough data, returning uniform distributions",
			"config_id", o.cfg.ConfigID,
			"rows", part.rows,
			"wins", part.wins,
			"required_wins", len(o.actions)*o.cfg.MinWins,
		)
		return o.uniform(), nil
	}

	// 3) per-action sampling
	draws := make([][]float64, len(o.actions))
	if err := o.sampleAll(ctx, part, draws); err != nil {
		return nil, err
	}

	// 4) aggregation
	return o.aggregate(draws, part), nil
}

func (o *Optimizer) partition(obs []domain.Observation, numHours int) *partition {
	p := &partition{
		numHours: numHours,
		byAction: make([][][]domain.Observation, len(o.actions)),
		hours:    make([]hourStats, numHours),
	}
	for i := range p.byAction {
		p.byAction[i] = make([][]domain.Observation, numHours)
	}
	for _, ob := range obs {
		if !p.add(ob) {
			continue
		}
		for _, idx := range o.index[ob.ComboKey(o.keys)] {
			p.byAction[idx][ob.AuctionHour] = append(p.byAction[idx][ob.AuctionHour], ob)
		}
	}
	return p
}

func (o *Optimizer) sampleAll(ctx context.Context, part *partition, draws [][]float64) error {
	if o.cfg.Parallelism == 1 {
		for i := range o.actions {
			d, err := o.sampleAction(ctx, i, part)
			if err != nil {
				return err
			}
			draws[i] = d
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)
	for i := range o.actions {
		g.Go(func() error {
			d, err := o.sampleAction(gctx, i, part)
			if err != nil {
				return err
			}
			draws[i] = d
			return nil
		})
	}
	return g.Wait()
}

// sampleAction pools the per-hour reward samples of one action and resamples
// them into BucketSize simulated trials. Each action draws from its own
// stream so the output does not depend on scheduling.
func (o *Optimizer) sampleAction(ctx context.Context, i int, part *partition) ([]float64, error) {
	rng := rand.New(rand.NewPCG(o.cfg.Seed, uint64(i)+1))

	var pool []float64
	for hour := 0; hour < part.numHours; hour++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hs := part.hours[hour]
		if hs.count == 0 {
			continue
		}

		rewards, err := o.model.RewardDistribution(part.byAction[i][hour], hs.count, hs.mean(), rng)
		if err != nil {
			return nil, fmt.Errorf("action %d (%s) hour %d: %w", i, o.actions[i].Key(o.keys), hour, err)
		}
		OptimizerModelCallsTotal.WithLabelValues(o.modelName).Inc()
		pool = append(pool, rewards...)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: action %d (%s)", ErrNoSamples, i, o.actions[i].Key(o.keys))
	}

	out := make([]float64, o.cfg.BucketSize)
	for j := range out {
		out[j] = pool[rng.IntN(len(pool))]
	}
	return out, nil
}

// aggregate counts, per trial column, which action drew the highest reward.
// Ties go to the lowest action index.
func (o *Optimizer) aggregate(draws [][]float64, part *partition) *domain.Distributions {
	wins := make([]int, len(o.actions))
	for col := 0; col < o.cfg.BucketSize; col++ {
		best := 0
		for a := 1; a < len(draws); a++ {
			if draws[a][col] > draws[best][col] {
				best = a
			}
		}
		wins[best]++
	}

	denom := float64(o.cfg.BucketSize) + float64(len(o.actions))*o.boost
	latest := part.numHours - 1

	out := &domain.Distributions{Actions: make([]domain.ActionResult, len(o.actions))}
	for i, combo := range o.actions {
		res := summarize(part.byAction[i][latest], o.cfg.MinWins)
		res.Config = combo
		res.ProbToWin = round4((float64(wins[i]) + o.boost) / denom)
		out.Actions[i] = res
	}
	return out
}

func (o *Optimizer) uniform() *domain.Distributions {
	p := 1 / float64(len(o.actions))
	out := &domain.Distributions{
		Actions:          make([]domain.ActionResult, len(o.actions)),
		InsufficientData: true,
	}
	for i, combo := range o.actions {
		out.Actions[i] = domain.ActionResult{Config: combo, ProbToWin: p}
	}
	return out
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
