package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces every key so a shared Redis can host other data.
const redisKeyPrefix = "voxelroom:"

// RedisKV stores keys as plain Redis strings.
type RedisKV struct {
	rdb *redis.Client
}

// OpenRedis connects to Redis. dsn is either a redis:// URL or a bare
// host:port address.
func OpenRedis(ctx context.Context, dsn string) (*RedisKV, error) {
	var opts *redis.Options
	if strings.Contains(dsn, "://") {
		parsed, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: dsn}
	}

	rdb := redis.NewClient(opts)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisKV{rdb: rdb}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// PutBatch wraps the writes in MULTI/EXEC.
func (r *RedisKV) PutBatch(ctx context.Context, entries map[string][]byte) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, redisKeyPrefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (r *RedisKV) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, redisKeyPrefix+key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisKV) Close() error {
	return r.rdb.Close()
}
