package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"prebidOptimizer/business/job"
	"prebidOptimizer/domain"
	gcsRepo "prebidOptimizer/internal/repository/gcs"
	psqlRepo "prebidOptimizer/internal/repository/postgres"
	redisRepo "prebidOptimizer/internal/repository/redis"
	"prebidOptimizer/pkg/config"
	"prebidOptimizer/pkg/database"
	"prebidOptimizer/pkg/database/redis"
	"prebidOptimizer/pkg/logger"
	"prebidOptimizer/pkg/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const runTimestampLayout = "2006-01-02 15:04:05"

type options struct {
	env            string
	configIDs      []string
	bucketSize     int
	hourWindow     int
	dataDelayHour  int
	modelType      string
	runTimestamp   string
	candidatesFile string
	minProbability float64
	seed           uint64
	parallelism    int
	noRedis        bool
	dev            bool
}

func newRootCmd() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:   "optimizer",
		Short: "Generate Thompson-sampling prebid config distributions",
		Long: `Reads hourly auction outcomes for each config id, samples rewards for every
candidate config combination and stores the resulting probability of each
combination being the best one.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.env, "env", "", "environment the distributions are published for (defaults to OPTIMIZER_ENV)")
	f.StringSliceVar(&o.configIDs, "config-ids", nil, "comma separated config ids to optimize")
	f.IntVar(&o.bucketSize, "bucket-size", 10000, "samples drawn per hour and action")
	f.IntVar(&o.hourWindow, "hour-window", 3, "hours of data to use")
	f.IntVar(&o.dataDelayHour, "data-delay-hour", 2, "hours to step back from the run timestamp")
	f.StringVar(&o.modelType, "model-type", "default", "reward model: default, beta_lognormal or gamma")
	f.StringVar(&o.runTimestamp, "run-timestamp", "", `run timestamp in UTC, "2006-01-02 15:04:05" (defaults to now)`)
	f.StringVar(&o.candidatesFile, "candidates-file", "", "YAML file mapping config ids to candidate values")
	f.Float64Var(&o.minProbability, "min-probability", 0.025, "probability floor for every action")
	f.Uint64Var(&o.seed, "seed", 0, "random seed (random when unset)")
	f.IntVar(&o.parallelism, "parallelism", 1, "actions sampled concurrently")
	f.BoolVar(&o.noRedis, "no-redis", false, "do not publish to the redis distribution cache")
	f.BoolVar(&o.dev, "dev", false, "debug logging and dry run: print distributions instead of storing them")
	_ = cmd.MarkFlagRequired("config-ids")

	return cmd
}

// applyDefaults fills flags the user left unset from the environment config.
func applyDefaults(o *options, flags *pflag.FlagSet, oc config.OptimizerConfig) {
	if !flags.Changed("env") {
		o.env = oc.Env
	}
	if !flags.Changed("bucket-size") && oc.BucketSize > 0 {
		o.bucketSize = oc.BucketSize
	}
	if !flags.Changed("hour-window") && oc.HourWindow > 0 {
		o.hourWindow = oc.HourWindow
	}
	if !flags.Changed("data-delay-hour") {
		o.dataDelayHour = oc.DataDelayHour
	}
	if !flags.Changed("model-type") && oc.ModelType != "" {
		o.modelType = oc.ModelType
	}
	if !flags.Changed("candidates-file") {
		o.candidatesFile = oc.CandidatesFile
	}
	if !flags.Changed("min-probability") {
		o.minProbability = oc.MinProbability
	}
	if !flags.Changed("parallelism") && oc.Parallelism > 0 {
		o.parallelism = oc.Parallelism
	}
}

func buildRequests(o *options, seedSet bool, candidates config.Candidates) ([]job.RunRequest, error) {
	var runTS time.Time
	if o.runTimestamp != "" {
		ts, err := time.ParseInLocation(runTimestampLayout, o.runTimestamp, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid --run-timestamp %q: %w", o.runTimestamp, err)
		}
		runTS = ts
	}

	reqs := make([]job.RunRequest, 0, len(o.configIDs))
	for _, raw := range o.configIDs {
		configID := strings.TrimSpace(raw)
		if configID == "" {
			continue
		}
		cands, ok := candidates.For(configID)
		if !ok {
			return nil, fmt.Errorf("no candidates for config id %s", configID)
		}

		minP := o.minProbability
		req := job.RunRequest{
			Env:            o.env,
			ConfigID:       configID,
			BucketSize:     o.bucketSize,
			HourWindow:     o.hourWindow,
			DataDelayHour:  o.dataDelayHour,
			ModelType:      o.modelType,
			Candidates:     cands,
			RunTimestamp:   runTS,
			MinProbability: &minP,
			Parallelism:    o.parallelism,
			Verbose:        o.dev,
			DryRun:         o.dev,
		}
		if seedSet {
			seed := o.seed
			req.Seed = &seed
		}
		reqs = append(reqs, req)
	}

	if len(reqs) == 0 {
		return nil, fmt.Errorf("no config ids given")
	}
	return reqs, nil
}

func execute(cmd *cobra.Command, o *options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyDefaults(o, cmd.Flags(), cfg.Optimizer)

	env := cfg.App.Environment
	if o.dev {
		env = "development"
	}
	logger.Setup(env, logger.Options{Verbose: o.dev, File: cfg.App.LogFile})
	defer logger.Close()
	metrics.Init()

	candidates, err := config.LoadCandidates(o.candidatesFile)
	if err != nil {
		return err
	}
	reqs, err := buildRequests(o, cmd.Flags().Changed("seed"), candidates)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitPostgres(cfg)
	if err != nil {
		return err
	}

	var results job.ResultRepository
	var publishers []job.DistributionPublisher
	if !o.dev {
		if err := database.Migrate(db); err != nil {
			return err
		}
		results = psqlRepo.NewResultRepository(db)

		if !o.noRedis {
			redisClient, err := redis.NewRedisClient(cfg.Redis)
			if err != nil {
				return err
			}
			defer redis.CloseRedisClient(redisClient)
			publishers = append(publishers, redisRepo.NewDistributionCache(redisClient, cfg.Redis.DistributionTTL))
		}

		if cfg.GCS.Enabled {
			storageClient, err := gcsRepo.NewStorageClient(ctx, cfg.GCS.CredentialsFile)
			if err != nil {
				return err
			}
			defer storageClient.Close()
			publishers = append(publishers, gcsRepo.NewDistributionRepository(storageClient, cfg.GCS.BucketTemplate))
		}
	}

	svc := job.NewRunService(
		psqlRepo.NewAuctionRepository(db, cfg.Optimizer.MaxSessionSeconds),
		results,
		publishers,
		validator.New(),
	)

	return runAll(ctx, svc, reqs, cmd.OutOrStdout(), o.dev)
}

type runner interface {
	Run(ctx context.Context, req job.RunRequest) (*domain.OptimizerRun, error)
}

// runAll processes config ids one after another and stops at the first failure.
func runAll(ctx context.Context, svc runner, reqs []job.RunRequest, out io.Writer, printResult bool) error {
	for _, req := range reqs {
		started := time.Now()
		logger.Info("Optimizing config", "config_id", req.ConfigID, "env", req.Env, "model_type", req.ModelType)

		run, err := svc.Run(ctx, req)
		if err != nil {
			return fmt.Errorf("config %s: %w", req.ConfigID, err)
		}

		logger.Info("Finished config",
			"config_id", req.ConfigID,
			"insufficient_data", run.InsufficientData,
			"elapsed", time.Since(started).String(),
		)

		if printResult {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(run.Distributions().Reduce()); err != nil {
				return err
			}
		}
	}
	return nil
}
