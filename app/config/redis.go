// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package config

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of the go-redis client used for the run lock.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// NewRedis returns a client for cfg.RedisHost, or nil when no host is configured.
func NewRedis(cfg Config) (RedisClient, error) {
	if cfg.RedisHost == "" {
		return nil, nil
	}
	password, err := ReadSecretFile(cfg.PathToRedisPassword)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisHost,
		Password: password,
		DB:       cfg.RedisDB,
	}), nil
}

func RedisReady(ctx context.Context, rdb RedisClient) bool {
	res, err := rdb.Ping(ctx).Result()
	if err != nil {
		return false
	}
	return res == "PONG"
}
