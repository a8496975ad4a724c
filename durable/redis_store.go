package durable

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each run's journal in one Redis hash.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore stores journals under prefix. A positive ttl expires a run's
// journal that long after its last write.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "neuron:journal:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) hash(runID string) string {
	return s.prefix + runID
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, runID, key string) ([]byte, bool, error) {
	payload, err := s.client.HGet(ctx, s.hash(runID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, runID, key string, payload []byte) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.hash(runID), key, payload)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.hash(runID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteRun implements Store.
func (s *RedisStore) DeleteRun(ctx context.Context, runID string) error {
	return s.client.Del(ctx, s.hash(runID)).Err()
}
