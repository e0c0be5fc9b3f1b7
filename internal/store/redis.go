package store

import (
	"context"
	"encoding/json"
	"fmt"

	"chess-coordinator/internal/settlement"

	"github.com/redis/go-redis/v9"
)

// RedisStore appends settlement failures to a Redis list so they survive a
// restart of the coordinator and can be reconciled out of band.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil for RedisStore")
	}
	if keyPrefix == "" {
		keyPrefix = "coordinator:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// OpenRedis connects to the server at url and verifies it with a ping.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func (s *RedisStore) failuresKey() string {
	return s.keyPrefix + "settlement:failures"
}

func (s *RedisStore) RecordFailure(ctx context.Context, f settlement.Failure) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("redis: encode failure for room %s: %w", f.Request.RoomCode, err)
	}
	if err := s.client.RPush(ctx, s.failuresKey(), raw).Err(); err != nil {
		return fmt.Errorf("redis: record failure for room %s: %w", f.Request.RoomCode, err)
	}
	return nil
}

func (s *RedisStore) Failures(ctx context.Context) ([]settlement.Failure, error) {
	raws, err := s.client.LRange(ctx, s.failuresKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list failures from %s: %w", s.failuresKey(), err)
	}
	out := make([]settlement.Failure, 0, len(raws))
	for _, raw := range raws {
		var f settlement.Failure
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("redis: decode failure: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
