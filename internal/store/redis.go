package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// presenceTTL bounds how stale a cached presence entry can get if a server
// dies without cleaning up. Connected clients refresh it on ping.
const presenceTTL = 90 * time.Second

// RedisStore caches presence and backs the API rate limiter. It is optional;
// all methods degrade to no-ops when constructed with a nil client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the raw client for middleware that keys Redis directly.
// Nil when the store is disabled.
func (r *RedisStore) Client() *redis.Client {
	if r == nil {
		return nil
	}
	return r.client
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() {
	if r == nil || r.client == nil {
		return
	}
	r.client.Close()
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

func presenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}

// SetOnline marks a user online in the presence cache.
func (r *RedisStore) SetOnline(ctx context.Context, userID uuid.UUID) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Set(ctx, presenceKey(userID), "1", presenceTTL).Err()
}

// RefreshOnline extends the TTL of a user's presence entry.
func (r *RedisStore) RefreshOnline(ctx context.Context, userID uuid.UUID) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Expire(ctx, presenceKey(userID), presenceTTL).Err()
}

// SetOffline removes a user from the presence cache.
func (r *RedisStore) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Del(ctx, presenceKey(userID)).Err()
}

// OnlineUserIDs returns the IDs of users with a live presence entry.
func (r *RedisStore) OnlineUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	if r == nil || r.client == nil {
		return nil, nil
	}

	var ids []uuid.UUID
	iter := r.client.Scan(ctx, 0, "presence:*", 200).Iterator()
	for iter.Next(ctx) {
		id, err := uuid.Parse(iter.Val()[len("presence:"):])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, iter.Err()
}
