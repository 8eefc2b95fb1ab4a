package redis

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/go-redis/redis/v8"

	"policyhub/internal/config"
)

var (
	client  *redis.Client
	once    sync.Once
	initErr error
)

// GetClient initializes and returns a singleton Redis client instance.
func GetClient(cfg *config.RedisConfig) (*redis.Client, error) {
	once.Do(func() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		ctx := context.Background()
		if err := rdb.Ping(ctx).Err(); err != nil {
			initErr = fmt.Errorf("unable to connect to Redis: %w", err)
			return
		}

		log.Println("✅ Connected to Redis!")
		client = rdb
	})

	return client, initErr
}

// Close safely closes the singleton Redis connection.
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// HealthCheck pings Redis to verify connectivity.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("Redis client is not initialized")
	}
	return client.Ping(ctx).Err()
}
