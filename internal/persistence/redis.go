package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/workflow-service/internal/config"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// TryLock acquires a best-effort distributed lock. It returns true when
// this instance holds the lock for the TTL. With no Redis configured it
// returns true so a single-instance deployment still sweeps.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) bool {
	if r == nil || r.Client == nil {
		return true
	}
	ok, err := r.Client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false
	}
	return ok
}

// Unlock releases a lock acquired with TryLock.
func (r *Redis) Unlock(ctx context.Context, key string) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Del(ctx, key).Err()
}
