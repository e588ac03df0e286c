package services

import (
	"context"
	"fmt"
	"time"

	"simonair-telemetry-service/config"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	Rdb *redis.Client
}

func NewRedisClient(conf config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.URL,
		Password: conf.Password,
		Username: conf.Username,
		DB:       conf.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Health check by pinging the Redis server
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("unable to connect to Redis: %w", err)
	}

	return &Redis{
		Rdb: rdb,
	}, nil
}
