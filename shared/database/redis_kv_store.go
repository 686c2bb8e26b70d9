package database

import (
	"context"
	"errors"
	"fmt"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure RedisKVStore implements KVStore
var _ interfaces.KVStore = (*RedisKVStore)(nil)

type RedisKVStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisKVStore creates a Redis-backed KVStore. Keys are namespaced with prefix.
func NewRedisKVStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisKVStore {
	return &RedisKVStore{
		client: client,
		prefix: prefix,
		logger: logger.Named("RedisKVStore"),
	}
}

func (r *RedisKVStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Error getting key from Redis", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores the value without TTL: saves and the archive live until overwritten.
func (r *RedisKVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		r.logger.Error("Error setting key in Redis", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKVStore) Close() error {
	return r.client.Close()
}
