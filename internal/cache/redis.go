package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gymhub/api/internal/config"
)

const (
	redisPingTimeout = 5 * time.Second
	redisDialTimeout = 3 * time.Second
	redisIOTimeout   = 2 * time.Second
)

// NewRedisClient connects the client shared by the MFA replay guard and the
// notification stream. No client is returned when the server is unreachable.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(redisOptions(cfg))
	if err := pingOrClose(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	}
}

// pingOrClose releases the client's pool when the ping fails.
func pingOrClose(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	err := client.Ping(ctx).Err()
	if err == nil {
		return nil
	}
	err = fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	if closeErr := client.Close(); closeErr != nil {
		return errors.Join(err, fmt.Errorf("redis close: %w", closeErr))
	}
	return err
}
