package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces the session keys in a shared Redis.
const RedisKeyPrefix = "taskboard:"

type redisKVStore struct {
	client *redis.Client
}

// NewRedisKVStore creates a KVStore on top of an existing Redis client.
func NewRedisKVStore(client *redis.Client) KVStore {
	if client == nil {
		panic("storage.NewRedisKVStore: client is nil")
	}
	return &redisKVStore{client: client}
}

func (s *redisKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, RedisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting %q from redis: %w", key, err)
	}
	return value, true, nil
}

func (s *redisKVStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, RedisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("setting %q in redis: %w", key, err)
	}
	return nil
}

func (s *redisKVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, RedisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("deleting %q from redis: %w", key, err)
	}
	return nil
}
