//go:build !integration

package redis

import (
	"context"
	"testing"
	"time"

	"prebidOptimizer/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, ttl time.Duration) (*DistributionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDistributionCache(client, ttl), mr
}

func sampleSet() domain.DistributionSet {
	return domain.DistributionSet{Actions: []domain.ActionProbability{
		{Config: domain.ConfigCombo{"bidderTimeout": 1000}, ProbToWin: 0.25},
		{Config: domain.ConfigCombo{"bidderTimeout": 2000}, ProbToWin: 0.75},
	}}
}

func TestDistributionCache_PublishAndGet(t *testing.T) {
	cache, mr := newCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.PublishDistributions(ctx, "devint", "cfg-1", sampleSet()))

	assert.True(t, mr.Exists("prebid_optimizer:distributions:cfg-1"))
	assert.Equal(t, time.Hour, mr.TTL("prebid_optimizer:distributions:cfg-1"))

	got, err := cache.GetDistributions(ctx, "cfg-1")
	require.NoError(t, err)
	require.Len(t, got.Actions, 2)
	assert.Equal(t, 0.75, got.Actions[1].ProbToWin)
	assert.Equal(t, float64(2000), got.Actions[1].Config["bidderTimeout"])
}

func TestDistributionCache_Expiry(t *testing.T) {
	cache, mr := newCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.PublishDistributions(ctx, "devint", "cfg-1", sampleSet()))
	mr.FastForward(2 * time.Minute)

	_, err := cache.GetDistributions(ctx, "cfg-1")
	assert.ErrorIs(t, err, domain.ErrDistributionNotFound)
}

func TestDistributionCache_Missing(t *testing.T) {
	cache, _ := newCache(t, 0)

	_, err := cache.GetDistributions(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrDistributionNotFound)
}

func TestDistributionCache_Invalidate(t *testing.T) {
	cache, mr := newCache(t, 0)
	ctx := context.Background()

	require.NoError(t, cache.PublishDistributions(ctx, "devint", "cfg-1", sampleSet()))
	require.NoError(t, cache.Invalidate(ctx, "cfg-1"))
	assert.False(t, mr.Exists("prebid_optimizer:distributions:cfg-1"))
}

func TestDistributionCache_PublishUnreachable(t *testing.T) {
	cache, mr := newCache(t, 0)
	mr.Close()

	err := cache.PublishDistributions(context.Background(), "devint", "cfg-1", sampleSet())
	assert.Error(t, err)
}
