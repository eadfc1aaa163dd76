package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/brunovarela/notesync/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewClient connects to the Redis instance backing the flush lease, the
// draft store and the change notifier. Startup tolerates a Redis that is
// still coming up (e.g. compose ordering) by retrying the initial ping with
// a linearly growing delay.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		ClientName:   "notesync",
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 5
	}
	delay := cfg.ConnectRetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if err = client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Redis not reachable yet")
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * delay):
		}
	}
	client.Close()
	return nil, fmt.Errorf("redis unreachable after %d attempts: %w", retries, err)
}
