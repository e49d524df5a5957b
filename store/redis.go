package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"synbl/logger"

	"github.com/redis/go-redis/v9"
)

const blockPrefix = "synbl:block:"

type RedisStore struct {
	Client *redis.Client
	ctx    context.Context
}

func NewRedisStore(addr string, password string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	return &RedisStore{
		Client: client,
		ctx:    context.Background(),
	}
}

// Ping checks connectivity once at startup.
func (s *RedisStore) Ping(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if err := s.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) IsBlocked(key string) bool {
	exists, err := s.Client.Exists(s.ctx, blockPrefix+key).Result()
	if err != nil {
		logger.Error("Redis check failed", "err", err)
		return false
	}
	return exists > 0
}

// Block stores key; a zero expiration never expires.
func (s *RedisStore) Block(key string, expiration time.Duration, blockType string) error {
	if err := s.Client.Set(s.ctx, blockPrefix+key, blockType, expiration).Err(); err != nil {
		return fmt.Errorf("redis block %s: %w", key, err)
	}
	logger.Debug("Distributed block issued", "key", key, "type", blockType, "duration", expiration)
	return nil
}

func (s *RedisStore) Unblock(key string) error {
	if err := s.Client.Del(s.ctx, blockPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis unblock %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ListBlocks() (map[string]string, error) {
	blocks := make(map[string]string)
	iter := s.Client.Scan(s.ctx, 0, blockPrefix+"*", 256).Iterator()
	for iter.Next(s.ctx) {
		k := iter.Val()
		val, err := s.Client.Get(s.ctx, k).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		blocks[strings.TrimPrefix(k, blockPrefix)] = val
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
