package database

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients splits traffic in two. Queue serves the save queue, editing
// sessions, the timeline cache and refresh tokens; every save worker parks
// one of its connections in BLPOP. PubSub carries subject update events and
// the hub's long-lived subscriptions.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

// NewRedisClients connects both clients. The queue pool is grown by
// workers so blocked BLPOP calls never starve request handlers.
func NewRedisClients(redisURL string, workers int) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queueOpt := *opt
	queueOpt.PoolSize = queuePoolSize(opt.PoolSize, workers)
	queueClient := redis.NewClient(&queueOpt)
	if err := queueClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis (queue): %w", err)
	}

	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		queueClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Queue:  queueClient,
		PubSub: pubsubClient,
	}, nil
}

func queuePoolSize(configured, workers int) int {
	base := configured
	if base <= 0 {
		base = 10 * runtime.GOMAXPROCS(0)
	}
	if workers < 0 {
		workers = 0
	}
	return base + workers
}

// Ping reports the first client that cannot reach Redis.
func (r *RedisClients) Ping(ctx context.Context) error {
	if err := r.Queue.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis queue: %w", err)
	}
	if err := r.PubSub.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis pubsub: %w", err)
	}
	return nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
