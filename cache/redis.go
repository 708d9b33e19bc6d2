package cache

import (
	"context"
	"fmt"
	"time"

	"remixai/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the process-wide Redis client. It stays nil when Redis is
// not configured; every helper in this package is a no-op in that case.
var RedisClient *redis.Client

// Connect initializes the Redis connection when a host is configured.
func Connect(cfg *config.Config) error {
	if cfg.RedisHost == "" {
		return nil
	}

	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		RedisClient = nil
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection if one was opened.
func Close() error {
	if RedisClient != nil {
		err := RedisClient.Close()
		RedisClient = nil
		return err
	}
	return nil
}

// Ping verifies connectivity and a basic round trip.
func Ping() error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	ctx := context.Background()

	if err := RedisClient.Set(ctx, "remixai:healthcheck", "ok", time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set health key: %w", err)
	}
	val, err := RedisClient.Get(ctx, "remixai:healthcheck").Result()
	if err != nil {
		return fmt.Errorf("failed to get health key: %w", err)
	}
	if val != "ok" {
		return fmt.Errorf("unexpected health value: %s", val)
	}
	if _, err := RedisClient.Del(ctx, "remixai:healthcheck").Result(); err != nil {
		return fmt.Errorf("failed to delete health key: %w", err)
	}
	return nil
}
