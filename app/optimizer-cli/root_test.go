//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"prebidOptimizer/business/job"
	"prebidOptimizer/domain"
	"prebidOptimizer/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*options, bool) {
	t.Helper()
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(args))

	o := &options{}
	o.env, _ = cmd.Flags().GetString("env")
	o.configIDs, _ = cmd.Flags().GetStringSlice("config-ids")
	o.bucketSize, _ = cmd.Flags().GetInt("bucket-size")
	o.hourWindow, _ = cmd.Flags().GetInt("hour-window")
	o.dataDelayHour, _ = cmd.Flags().GetInt("data-delay-hour")
	o.modelType, _ = cmd.Flags().GetString("model-type")
	o.runTimestamp, _ = cmd.Flags().GetString("run-timestamp")
	o.candidatesFile, _ = cmd.Flags().GetString("candidates-file")
	o.minProbability, _ = cmd.Flags().GetFloat64("min-probability")
	o.seed, _ = cmd.Flags().GetUint64("seed")
	o.parallelism, _ = cmd.Flags().GetInt("parallelism")
	o.dev, _ = cmd.Flags().GetBool("dev")

	applyDefaults(o, cmd.Flags(), config.OptimizerConfig{
		Env:            "devint",
		BucketSize:     500,
		HourWindow:     4,
		DataDelayHour:  1,
		ModelType:      "gamma",
		MinProbability: 0.01,
		Parallelism:    2,
	})
	return o, cmd.Flags().Changed("seed")
}

func TestApplyDefaults_FlagsWin(t *testing.T) {
	o, seedSet := parse(t,
		"--env", "prod",
		"--config-ids", "a,b",
		"--bucket-size", "10000",
		"--model-type", "default",
		"--data-delay-hour", "0",
		"--seed", "11",
	)

	assert.Equal(t, "prod", o.env)
	assert.Equal(t, []string{"a", "b"}, o.configIDs)
	assert.Equal(t, 10000, o.bucketSize)
	assert.Equal(t, "default", o.modelType)
	assert.Equal(t, 0, o.dataDelayHour)
	assert.True(t, seedSet)

	// untouched flags come from the environment
	assert.Equal(t, 4, o.hourWindow)
	assert.Equal(t, 0.01, o.minProbability)
	assert.Equal(t, 2, o.parallelism)
}

func TestBuildRequests(t *testing.T) {
	o, seedSet := parse(t,
		"--config-ids", "special, other",
		"--run-timestamp", "2021-09-16 08:12:32",
		"--dev",
	)
	cands := config.Candidates{
		config.DefaultCandidatesKey: {"bidderTimeout": {1000, 1500}},
		"special":                   {"bidderTimeout": {300}, "floor": {0.1, 0.2}},
	}

	reqs, err := buildRequests(o, seedSet, cands)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "special", reqs[0].ConfigID)
	assert.Len(t, reqs[0].Candidates, 2)
	assert.Equal(t, "other", reqs[1].ConfigID)
	assert.Equal(t, []any{1000, 1500}, reqs[1].Candidates["bidderTimeout"])

	for _, r := range reqs {
		assert.Equal(t, "devint", r.Env)
		assert.Equal(t, time.Date(2021, 9, 16, 8, 12, 32, 0, time.UTC), r.RunTimestamp)
		assert.True(t, r.DryRun)
		assert.True(t, r.Verbose)
		assert.Nil(t, r.Seed)
		require.NotNil(t, r.MinProbability)
		assert.Equal(t, 0.01, *r.MinProbability)
	}
}

func TestBuildRequests_Errors(t *testing.T) {
	o, _ := parse(t, "--config-ids", "a", "--run-timestamp", "16/09/2021")
	_, err := buildRequests(o, false, config.DefaultCandidates())
	assert.Error(t, err)

	o, _ = parse(t, "--config-ids", "a")
	_, err = buildRequests(o, false, config.Candidates{})
	assert.Error(t, err)

	o, _ = parse(t, "--config-ids", " ")
	_, err = buildRequests(o, false, config.DefaultCandidates())
	assert.Error(t, err)
}

type stubRunner struct {
	seen []string
	fail string
}

func (s *stubRunner) Run(ctx context.Context, req job.RunRequest) (*domain.OptimizerRun, error) {
	s.seen = append(s.seen, req.ConfigID)
	if req.ConfigID == s.fail {
		return nil, errors.New("boom")
	}
	return &domain.OptimizerRun{
		ConfigID: req.ConfigID,
		Actions: []domain.ActionResult{
			{Config: domain.ConfigCombo{"bidderTimeout": 1000}, ProbToWin: 1},
		},
	}, nil
}

func TestRunAll_PrintsReducedView(t *testing.T) {
	svc := &stubRunner{}
	var out bytes.Buffer

	err := runAll(context.Background(), svc, []job.RunRequest{{ConfigID: "a"}, {ConfigID: "b"}}, &out, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, svc.seen)

	dec := json.NewDecoder(&out)
	var first domain.DistributionSet
	require.NoError(t, dec.Decode(&first))
	require.Len(t, first.Actions, 1)
	assert.Equal(t, 1.0, first.Actions[0].ProbToWin)
}

func TestRunAll_StopsOnError(t *testing.T) {
	svc := &stubRunner{fail: "a"}

	err := runAll(context.Background(), svc, []job.RunRequest{{ConfigID: "a"}, {ConfigID: "b"}}, &bytes.Buffer{}, false)
	assert.ErrorContains(t, err, "config a")
	assert.Equal(t, []string{"a"}, svc.seen)
}
