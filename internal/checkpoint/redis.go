package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "jobseed:checkpoint:"

// DefaultTTL bounds how long an abandoned checkpoint lingers.
const DefaultTTL = 7 * 24 * time.Hour

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisStore keeps checkpoints as JSON strings with a TTL.
type RedisStore struct {
	c   redisClient
	ttl time.Duration
}

// NewRedisStore parses redisURL and verifies connectivity.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{c: client, ttl: DefaultTTL}, nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (State, bool, error) {
	raw, err := s.c.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("redis get checkpoint: %w", err)
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, false, fmt.Errorf("decode checkpoint %s: %w", key, err)
	}
	return st, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, st State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.c.Set(ctx, keyPrefix+key, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.c.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.c.Close() }
