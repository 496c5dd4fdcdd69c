package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "roomframe:store:"

// RedisStore keeps each room's partition in one Redis hash. Values are
// JSON-encoded, so anything that round-trips through encoding/json works.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close releases the Redis connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(roomID string) string {
	return redisKeyPrefix + roomID
}

// Init creates the room partition, seeding keys that are not present yet
func (s *RedisStore) Init(ctx context.Context, roomID string, initial map[string]any) (map[string]any, error) {
	for k, v := range initial {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode initial value %s: %w", k, err)
		}
		if err := s.client.HSetNX(ctx, redisKey(roomID), k, data).Err(); err != nil {
			return nil, fmt.Errorf("failed to init storage for room %s: %w", roomID, err)
		}
	}
	all, err := s.Recall(ctx, roomID, "")
	if err != nil {
		if len(initial) == 0 {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return all.(map[string]any), nil
}

// Store writes one key
func (s *RedisStore) Store(ctx context.Context, roomID, key string, value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value for %s: %w", key, err)
	}
	if err := s.client.HSet(ctx, redisKey(roomID), key, data).Err(); err != nil {
		return nil, fmt.Errorf("failed to store %s for room %s: %w", key, roomID, err)
	}
	return value, nil
}

// Recall returns one key, or the whole partition when key == ""
func (s *RedisStore) Recall(ctx context.Context, roomID, key string) (any, error) {
	if key == "" {
		raw, err := s.client.HGetAll(ctx, redisKey(roomID)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to recall room %s: %w", roomID, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("%w: room %s", ErrKeyNotFound, roomID)
		}
		out := make(map[string]any, len(raw))
		for k, v := range raw {
			var value any
			if err := json.Unmarshal([]byte(v), &value); err != nil {
				value = v
			}
			out[k] = value
		}
		return out, nil
	}

	raw, err := s.client.HGet(ctx, redisKey(roomID), key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s in room %s", ErrKeyNotFound, key, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to recall %s for room %s: %w", key, roomID, err)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw, nil
	}
	return value, nil
}

// Forget removes one key, or the whole partition when key == ""
func (s *RedisStore) Forget(ctx context.Context, roomID, key string) (any, error) {
	removed, err := s.Recall(ctx, roomID, key)
	if err != nil {
		return nil, err
	}
	if key == "" {
		if err := s.client.Del(ctx, redisKey(roomID)).Err(); err != nil {
			return nil, fmt.Errorf("failed to release room %s: %w", roomID, err)
		}
		return removed, nil
	}
	if err := s.client.HDel(ctx, redisKey(roomID), key).Err(); err != nil {
		return nil, fmt.Errorf("failed to forget %s for room %s: %w", key, roomID, err)
	}
	return removed, nil
}
