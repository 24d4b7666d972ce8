package utils

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lipolab/postboard/config"
)

// NewRedisClient returns a Redis client when enabled in configuration and reachable, nil otherwise.
func NewRedisClient(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) *redis.Client {
	if !cfg.RedisEnabled {
		return nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		ReportFailure(logger, FailureDegraded, "redis unreachable, response cache disabled", zap.Error(err))
		_ = rc.Close()
		return nil
	}
	return rc
}
