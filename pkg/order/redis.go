package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists pending orders in Redis so bot restarts do not drop
// mid-conversation state. Expiry rides on Redis key TTLs; a zero ttl stores
// keys without expiry.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a store namespaced per bot.
func NewRedisStore(addr, password string, db int, botID string, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{
		client:    client,
		keyPrefix: "voxbill:order:" + botID + ":",
		ttl:       ttl,
	}
}

// Get returns the sender's pending order, or (nil, nil) on a miss.
func (s *RedisStore) Get(ctx context.Context, senderKey string) (*Order, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+senderKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

// Put stores the sender's pending order with the configured TTL.
func (s *RedisStore) Put(ctx context.Context, o *Order) error {
	cp := *o
	cp.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+o.SenderKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the sender's pending order.
func (s *RedisStore) Delete(ctx context.Context, senderKey string) error {
	if err := s.client.Del(ctx, s.keyPrefix+senderKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

var _ Store = (*RedisStore)(nil)
