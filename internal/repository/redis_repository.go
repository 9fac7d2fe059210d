package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

type redisKV struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisKV returns a KV storing each key under prefix in Redis.
func NewRedisKV(rdb *redis.Client, prefix string) KV {
	return &redisKV{rdb: rdb, prefix: prefix}
}

func (r *redisKV) key(k string) string { return r.prefix + k }

func (r *redisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return val, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, r.key(key), value, 0).Err()
}

func (r *redisKV) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}
