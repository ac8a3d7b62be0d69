package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
)

// initCache подключает Redis; без адреса или при недоступном Redis работает без кэша.
func initCache(ctx context.Context, addr string, ttl time.Duration, logger *log.Entry) (cache.Cache, *redis.Client) {
	if addr == "" {
		return cache.Noop{}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client, err := cache.Connect(connectCtx, addr)
	if err != nil {
		logger.WithError(err).Warn("failed to connect to redis, continuing without cache")
		return cache.Noop{}, nil
	}

	logger.WithField("addr", addr).Info("redis cache initialized")
	return cache.NewRedisCache(client, cache.WithDefaultTTL(ttl)), client
}

// closeRedis закрывает клиента, если он был создан.
func closeRedis(client *redis.Client, logger *log.Entry) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.WithError(err).Warn("failed to close redis client")
	}
}
