package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinical-ews/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// Cache keeps hot read results out of Postgres. Implementations are best
// effort: a cache failure never fails the request.
type Cache interface {
	GetPrediction(ctx context.Context, anonID string) (*PredictResult, bool)
	SetPrediction(ctx context.Context, anonID string, result PredictResult, ttl time.Duration)
	InvalidatePrediction(ctx context.Context, anonID string)
	GetDashboard(ctx context.Context) (*DashboardStats, bool)
	SetDashboard(ctx context.Context, stats DashboardStats, ttl time.Duration)
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func predictionKey(anonID string) string {
	return fmt.Sprintf("prediction:%s", anonID)
}

const dashboardKey = "dashboard:stats"

func (c *RedisCache) GetPrediction(ctx context.Context, anonID string) (*PredictResult, bool) {
	content, err := c.client.Get(ctx, predictionKey(anonID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.WithError(err).Debug("prediction cache read failed")
		}
		return nil, false
	}
	var result PredictResult
	if err := json.Unmarshal(content, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *RedisCache) SetPrediction(ctx context.Context, anonID string, result PredictResult, ttl time.Duration) {
	content, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, predictionKey(anonID), content, ttl).Err(); err != nil {
		logger.Log.WithError(err).Debug("prediction cache write failed")
	}
}

func (c *RedisCache) InvalidatePrediction(ctx context.Context, anonID string) {
	if err := c.client.Del(ctx, predictionKey(anonID)).Err(); err != nil {
		logger.Log.WithError(err).Debug("prediction cache invalidation failed")
	}
}

func (c *RedisCache) GetDashboard(ctx context.Context) (*DashboardStats, bool) {
	content, err := c.client.Get(ctx, dashboardKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.WithError(err).Debug("dashboard cache read failed")
		}
		return nil, false
	}
	var stats DashboardStats
	if err := json.Unmarshal(content, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

func (c *RedisCache) SetDashboard(ctx context.Context, stats DashboardStats, ttl time.Duration) {
	content, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, dashboardKey, content, ttl).Err(); err != nil {
		logger.Log.WithError(err).Debug("dashboard cache write failed")
	}
}
