//go:build !integration

package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"prebidOptimizer/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	obs        []domain.Observation
	start, end time.Time
	keys       []string
}

func (s *stubSource) FetchObservations(ctx context.Context, configID string, keys []string, start, end time.Time) ([]domain.Observation, error) {
	s.start, s.end, s.keys = start, end, keys
	return s.obs, nil
}

type recordingResults struct {
	runs []*domain.OptimizerRun
	err  error
}

func (r *recordingResults) SaveRun(ctx context.Context, run *domain.OptimizerRun) error {
	if r.err != nil {
		return r.err
	}
	r.runs = append(r.runs, run)
	return nil
}

type recordingPublisher struct {
	name string
	sets map[string]domain.DistributionSet
	err  error
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) PublishDistributions(ctx context.Context, env, configID string, set domain.DistributionSet) error {
	if p.err != nil {
		return p.err
	}
	if p.sets == nil {
		p.sets = map[string]domain.DistributionSet{}
	}
	p.sets[env+"/"+configID] = set
	return nil
}

func validRequest() RunRequest {
	return RunRequest{
		Env:           "devint",
		ConfigID:      "d385ba19",
		BucketSize:    1000,
		HourWindow:    3,
		DataDelayHour: 2,
		ModelType:     "default",
		Candidates:    map[string][]any{"bidderTimeout": {1000, 1500, 2000}},
		RunTimestamp:  time.Date(2021, 9, 16, 8, 12, 32, 0, time.UTC),
	}
}

func winningRows(hour int, timeout any, count int, pubrev float64) []domain.Observation {
	out := make([]domain.Observation, 0, count)
	for i := 0; i < count; i++ {
		o := domain.Observation{AuctionHour: hour, Config: map[string]any{"bidderTimeout": timeout}}
		if i%4 == 0 {
			o.Win = true
			o.PubRev = pubrev
		}
		out = append(out, o)
	}
	return out
}

func TestWindow(t *testing.T) {
	start, end := Window(time.Date(2021, 9, 16, 8, 12, 32, 0, time.UTC), 3, 2)

	assert.Equal(t, time.Date(2021, 9, 16, 6, 0, 0, 0, time.UTC), end)
	assert.Equal(t, time.Date(2021, 9, 16, 3, 0, 0, 0, time.UTC), start)
}

func TestRun_InvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunRequest)
	}{
		{"missing config id", func(r *RunRequest) { r.ConfigID = "" }},
		{"missing env", func(r *RunRequest) { r.Env = "" }},
		{"zero bucket size", func(r *RunRequest) { r.BucketSize = 0 }},
		{"zero window", func(r *RunRequest) { r.HourWindow = 0 }},
		{"negative delay", func(r *RunRequest) { r.DataDelayHour = -1 }},
		{"unknown model", func(r *RunRequest) { r.ModelType = "poisson" }},
		{"no candidates", func(r *RunRequest) { r.Candidates = map[string][]any{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewRunService(&stubSource{}, nil, nil, nil)
			req := validRequest()
			tt.mutate(&req)

			_, err := svc.Run(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestRun_InsufficientDataIsStoredAndPublished(t *testing.T) {
	src := &stubSource{}
	results := &recordingResults{}
	pub := &recordingPublisher{name: "memory"}
	svc := NewRunService(src, results, []DistributionPublisher{pub}, nil)

	run, err := svc.Run(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2021, 9, 16, 3, 0, 0, 0, time.UTC), src.start)
	assert.Equal(t, time.Date(2021, 9, 16, 6, 0, 0, 0, time.UTC), src.end)
	assert.Equal(t, []string{"bidderTimeout"}, src.keys)

	assert.True(t, run.InsufficientData)
	assert.Equal(t, "default", run.ModelType)
	assert.Equal(t, time.Date(2021, 9, 16, 8, 12, 32, 0, time.UTC), run.RunTimestamp)
	require.Len(t, results.runs, 1)
	assert.Equal(t, run.ID, results.runs[0].ID)

	set, ok := pub.sets["devint/d385ba19"]
	require.True(t, ok)
	require.Len(t, set.Actions, 3)
	for _, a := range set.Actions {
		assert.InDelta(t, 1.0/3, a.ProbToWin, 1e-12)
	}
	assert.Equal(t, domain.ConfigCombo{"bidderTimeout": 1000}, set.Actions[0].Config)
}

func TestRun_DryRunSkipsSinks(t *testing.T) {
	results := &recordingResults{}
	pub := &recordingPublisher{name: "memory"}
	svc := NewRunService(&stubSource{}, results, []DistributionPublisher{pub}, nil)

	req := validRequest()
	req.DryRun = true
	run, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.NotNil(t, run)
	assert.Empty(t, results.runs)
	assert.Empty(t, pub.sets)
}

func TestRun_SinkErrorsPropagate(t *testing.T) {
	saveErr := errors.New("db down")
	svc := NewRunService(&stubSource{}, &recordingResults{err: saveErr}, nil, nil)
	_, err := svc.Run(context.Background(), validRequest())
	assert.ErrorIs(t, err, saveErr)

	pubErr := errors.New("bucket missing")
	svc = NewRunService(&stubSource{}, &recordingResults{}, []DistributionPublisher{&recordingPublisher{name: "gcs", err: pubErr}}, nil)
	_, err = svc.Run(context.Background(), validRequest())
	assert.ErrorIs(t, err, pubErr)
}

func TestRun_SeededRunsAreReproducible(t *testing.T) {
	var obs []domain.Observation
	for hour := 0; hour < 3; hour++ {
		obs = append(obs, winningRows(hour, 1000, 400, 1e5)...)
		obs = append(obs, winningRows(hour, 1500, 400, 1.2e5)...)
		obs = append(obs, winningRows(hour, 2000, 400, 1.4e5)...)
	}
	seed := uint64(11)
	minProbability := 0.05

	run := func() *domain.OptimizerRun {
		req := validRequest()
		req.Seed = &seed
		req.MinProbability = &minProbability
		req.ModelType = "gamma"
		svc := NewRunService(&stubSource{obs: obs}, nil, nil, nil)
		r, err := svc.Run(context.Background(), req)
		require.NoError(t, err)
		return r
	}

	first, second := run(), run()
	assert.False(t, first.InsufficientData)
	assert.Equal(t, "gamma", first.ModelType)
	assert.Equal(t, first.Actions, second.Actions)
	assert.NotEqual(t, first.ID, second.ID)
	for _, a := range first.Actions {
		assert.GreaterOrEqual(t, a.ProbToWin, minProbability-1e-4)
	}
}
