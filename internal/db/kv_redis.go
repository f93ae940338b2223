package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisKeyValue stores values as plain Redis strings under prefix+key.
type RedisKeyValue struct {
	client *redis.Client
	prefix string
}

func NewRedisKeyValue(client *redis.Client, prefix string) *RedisKeyValue {
	return &RedisKeyValue{client: client, prefix: prefix}
}

func (r *RedisKeyValue) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

func (r *RedisKeyValue) Set(ctx context.Context, key, value string) error {
	err := r.client.Set(ctx, r.prefix+key, value, 0).Err()
	if isRedisOOM(err) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisKeyValue) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is healthy.
func (r *RedisKeyValue) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisKeyValue) Close() error {
	return r.client.Close()
}

// isRedisOOM matches the reply sent when maxmemory is reached.
func isRedisOOM(err error) bool {
	var redisErr redis.Error
	return errors.As(err, &redisErr) && strings.HasPrefix(redisErr.Error(), "OOM ")
}
