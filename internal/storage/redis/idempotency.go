// Package redis implements the idempotency store on Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arula-ai/commerce-api/internal/domain/order"
)

var _ order.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore deduplicates requests with SetNX locks and keeps a
// key -> result mapping so replays can return the original outcome. Both
// entries share a TTL; after expiry a replayed key is treated as new.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates an IdempotencyStore using the given client and entry TTL.
func New(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// TryLock atomically claims the key within its scope. It returns false when
// another request already holds it.
func (s *IdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	return s.rdb.SetNX(ctx, lockKey(scope, key), "1", s.ttl).Result()
}

// Remember records the result value for the key so replays can recall it.
func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	return s.rdb.Set(ctx, mapKey(scope, key), value, s.ttl).Err()
}

// Recall returns the remembered result for the key, if any.
func (s *IdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, mapKey(scope, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func lockKey(scope, key string) string {
	return fmt.Sprintf("idemp:%s:%s", scope, key)
}

func mapKey(scope, key string) string {
	return fmt.Sprintf("idemp:map:%s:%s", scope, key)
}
