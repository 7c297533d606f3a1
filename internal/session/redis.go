package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions across restarts. ttl <= 0 keeps keys forever.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, prefix: "comet:session:", ttl: ttl}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + threadID
}

func (s *RedisStore) Set(ctx context.Context, threadID string, cfg Config) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.key(threadID), b, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, threadID string) (Config, error) {
	b, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Config{}, missing(threadID)
		}
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
