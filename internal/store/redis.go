package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "carbon_aware_home:series:"

// RedisStore keeps one JSON value per location. TTL zero means no expiry.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		TTL:    ttl,
	}
}

func (s *RedisStore) key(location string) string {
	return redisKeyPrefix + sanitizeToken(location)
}

func (s *RedisStore) Save(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.Client.Set(ctx, s.key(record.Location), data, s.TTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, location string) (Record, error) {
	data, err := s.Client.Get(ctx, s.key(location)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis get snapshot: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return record, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
