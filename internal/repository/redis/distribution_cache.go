package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prebidOptimizer/business/job"
	"prebidOptimizer/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "prebid_optimizer:distributions"

// cachedDistributions is what sits under a config key. The env travels with
// the payload so readers can tell which environment produced it.
type cachedDistributions struct {
	Env         string                     `json:"env"`
	ConfigID    string                     `json:"config_id"`
	PublishedAt time.Time                  `json:"published_at"`
	Actions     []domain.ActionProbability `json:"actions"`
}

type DistributionCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ job.DistributionPublisher = (*DistributionCache)(nil)

func NewDistributionCache(client *redis.Client, ttl time.Duration) *DistributionCache {
	return &DistributionCache{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func DistributionKey(configID string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, configID)
}

func (c *DistributionCache) Name() string { return "redis" }

// PublishDistributions overwrites the cached view for configID. A zero ttl
// keeps the key until the next publish.
func (c *DistributionCache) PublishDistributions(ctx context.Context, env, configID string, set domain.DistributionSet) error {
	payload := cachedDistributions{
		Env:         env,
		ConfigID:    configID,
		PublishedAt: c.now().UTC(),
		Actions:     set.Actions,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal distributions: %w", err)
	}

	if err := c.client.Set(ctx, DistributionKey(configID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store distributions in Redis: %w", err)
	}
	return nil
}

// GetDistributions returns the last published view for configID.
func (c *DistributionCache) GetDistributions(ctx context.Context, configID string) (*domain.DistributionSet, error) {
	val, err := c.client.Get(ctx, DistributionKey(configID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrDistributionNotFound
		}
		return nil, fmt.Errorf("failed to get distributions from Redis: %w", err)
	}

	var payload cachedDistributions
	if err := json.Unmarshal(val, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal distributions: %w", err)
	}

	return &domain.DistributionSet{Actions: payload.Actions}, nil
}

// Invalidate drops the cached view, e.g. after a run is deleted.
func (c *DistributionCache) Invalidate(ctx context.Context, configID string) error {
	if err := c.client.Del(ctx, DistributionKey(configID)).Err(); err != nil {
		return fmt.Errorf("failed to delete distributions from Redis: %w", err)
	}
	return nil
}
