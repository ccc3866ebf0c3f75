package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/wastemap/internal/apperr"
)

// RedisChecker implements health checking for the report cache.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends a PING.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis: %v", apperr.ErrStoreUnavailable, err)
	}
	return nil
}
