package job

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"prebidOptimizer/business/optimizer"
	"prebidOptimizer/business/reward"
	"prebidOptimizer/domain"
	"prebidOptimizer/pkg/logger"
	"prebidOptimizer/pkg/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrInvalidRequest = errors.New("invalid run request")

// ---- Repository interfaces ----

type ResultRepository interface {
	SaveRun(ctx context.Context, run *domain.OptimizerRun) error
}

// DistributionPublisher pushes the reduced view to a runtime-config consumer.
type DistributionPublisher interface {
	Name() string
	PublishDistributions(ctx context.Context, env, configID string, set domain.DistributionSet) error
}

type RunRequest struct {
	Env            string           `json:"env" validate:"required"`
	ConfigID       string           `json:"config_id" validate:"required"`
	BucketSize     int              `json:"bucket_size" validate:"required,gt=0"`
	HourWindow     int              `json:"hour_window" validate:"required,gt=0"`
	DataDelayHour  int              `json:"data_delay_hour" validate:"gte=0"`
	ModelType      string           `json:"model_type" validate:"omitempty,oneof=default beta_lognormal gamma"`
	Candidates     map[string][]any `json:"candidates" validate:"required,min=1"`
	RunTimestamp   time.Time        `json:"run_timestamp"`
	MinProbability *float64         `json:"min_probability" validate:"omitempty,gte=0,lt=1"`
	Seed           *uint64          `json:"seed"`
	Parallelism    int              `json:"parallelism" validate:"gte=0"`
	Verbose        bool             `json:"verbose"`
	// DryRun generates distributions without persisting or publishing them.
	DryRun bool `json:"dry_run"`
}

type RunService struct {
	source     optimizer.DataSource
	results    ResultRepository
	publishers []DistributionPublisher
	validate   *validator.Validate
	now        func() time.Time
}

func NewRunService(
	source optimizer.DataSource,
	results ResultRepository,
	publishers []DistributionPublisher,
	validate *validator.Validate,
) *RunService {
	if validate == nil {
		validate = validator.New()
	}
	return &RunService{
		source:     source,
		results:    results,
		publishers: publishers,
		validate:   validate,
		now:        time.Now,
	}
}

// Window returns the [start, end) data window of a run: the run timestamp is
// floored to the hour, shifted back by the data delay, and spans hourWindow hours.
func Window(runTimestamp time.Time, hourWindow, dataDelayHour int) (start, end time.Time) {
	end = runTimestamp.UTC().Truncate(time.Hour).Add(-time.Duration(dataDelayHour) * time.Hour)
	start = end.Add(-time.Duration(hourWindow) * time.Hour)
	return start, end
}

func (s *RunService) Run(ctx context.Context, req RunRequest) (*domain.OptimizerRun, error) {
	// 1) validate
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	kind, err := reward.ParseKind(req.ModelType)
	if err != nil {
		return nil, err
	}

	runTimestamp := req.RunTimestamp
	if runTimestamp.IsZero() {
		runTimestamp = s.now()
	}
	runTimestamp = runTimestamp.UTC()
	start, end := Window(runTimestamp, req.HourWindow, req.DataDelayHour)

	minProbability := optimizer.DefaultMinProbability
	if req.MinProbability != nil {
		minProbability = *req.MinProbability
	}
	seed := rand.Uint64()
	if req.Seed != nil {
		seed = *req.Seed
	}

	// 2) build model + optimizer
	model, err := reward.New(reward.Spec{Kind: kind, Verbose: req.Verbose})
	if err != nil {
		return nil, err
	}
	opt, err := optimizer.New(optimizer.Config{
		ConfigID:       req.ConfigID,
		Candidates:     req.Candidates,
		BucketSize:     req.BucketSize,
		MinProbability: minProbability,
		Seed:           seed,
		Parallelism:    req.Parallelism,
	}, s.source, model)
	if err != nil {
		return nil, err
	}

	logger.Info("Running optimizer",
		"config_id", req.ConfigID,
		"model_type", kind,
		"actions", len(opt.Actions()),
		"start", start,
		"end", end,
		"seed", seed,
	)

	// 3) generate
	dist, err := opt.GenerateDistributions(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("generate distributions for %s: %w", req.ConfigID, err)
	}

	run := &domain.OptimizerRun{
		ID:               uuid.New(),
		ConfigID:         req.ConfigID,
		Env:              req.Env,
		ModelType:        string(kind),
		BucketSize:       req.BucketSize,
		RunTimestamp:     runTimestamp,
		StartTimestamp:   start,
		EndTimestamp:     end,
		InsufficientData: dist.InsufficientData,
		Actions:          dist.Actions,
	}

	if req.DryRun {
		logger.Debug("Dry run, skipping persistence", "config_id", req.ConfigID, "run_id", run.ID)
		return run, nil
	}

	// 4) persist full run
	if s.results != nil {
		if err := s.results.SaveRun(ctx, run); err != nil {
			return nil, err
		}
	}

	// 5) publish reduced view
	set := dist.Reduce()
	for _, p := range s.publishers {
		if err := s.publish(ctx, p, req.Env, req.ConfigID, set); err != nil {
			return nil, err
		}
	}

	logger.Info("Optimizer run stored",
		"config_id", req.ConfigID,
		"run_id", run.ID,
		"insufficient_data", run.InsufficientData,
	)
	return run, nil
}

func (s *RunService) publish(ctx context.Context, p DistributionPublisher, env, configID string, set domain.DistributionSet) error {
	started := time.Now()
	err := p.PublishDistributions(ctx, env, configID, set)
	metrics.DistributionPublishLatency.WithLabelValues(p.Name()).Observe(time.Since(started).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.DistributionPublishTotal.WithLabelValues(p.Name(), status).Inc()

	if err != nil {
		logger.Error("Failed to publish distributions", "sink", p.Name(), "config_id", configID, "error", err)
		return err
	}
	return nil
}
