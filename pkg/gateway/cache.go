package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// validationCacheTTL is deliberately short: shorter than any realistic
// revoke-to-next-call window, so a cache hit can never mask a
// revocation for long, and a miss always falls through to the
// registry, which is authoritative.
const validationCacheTTL = 2 * time.Second

// ValidationCache is the gateway's optional fast path for agent
// validation results. Absent by default; wiring REDIS_URL turns it on.
type ValidationCache interface {
	Get(ctx context.Context, agentID string) (IdentityResult, bool)
	Set(ctx context.Context, agentID string, result IdentityResult)
}

// RedisValidationCache is a short-TTL cache backed by go-redis.
type RedisValidationCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisValidationCache wraps an already-configured *redis.Client.
func NewRedisValidationCache(client *redis.Client, logger *zap.Logger) *RedisValidationCache {
	return &RedisValidationCache{client: client, logger: logger}
}

func cacheKey(agentID string) string {
	return "pathwell:agent-validation:" + agentID
}

func (c *RedisValidationCache) Get(ctx context.Context, agentID string) (IdentityResult, bool) {
	raw, err := c.client.Get(ctx, cacheKey(agentID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("validation cache get failed", zap.Error(err))
		}
		return IdentityResult{}, false
	}
	var result IdentityResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("validation cache decode failed", zap.Error(err))
		return IdentityResult{}, false
	}
	return result, true
}

func (c *RedisValidationCache) Set(ctx context.Context, agentID string, result IdentityResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("validation cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey(agentID), raw, validationCacheTTL).Err(); err != nil {
		c.logger.Warn("validation cache set failed", zap.Error(err))
	}
}
