package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blackhole-dns/warden/ports"
)

// RedisStore is a Redis implementation of the ThrottleStore interface, for
// deployments where several engine processes share one lockout state.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis throttle store.
func NewRedisStore(client *redis.Client) ports.ThrottleStore {
	return &RedisStore{
		client: client,
		prefix: "warden:throttle:",
	}
}

// RecordFailure increments the failure counter for the address. The counter
// expires with the window, so counts reset on their own.
func (s *RedisStore) RecordFailure(ctx context.Context, remoteAddr string, window time.Duration) (int, error) {
	key := s.prefix + "failures:" + remoteAddr

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to record login failure: %w", err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return int(n), fmt.Errorf("failed to set failure window: %w", err)
		}
	}

	return int(n), nil
}

// Block locks the address out by setting a key with the cooldown as TTL.
func (s *RedisStore) Block(ctx context.Context, remoteAddr string, cooldown time.Duration) error {
	key := s.prefix + "blocked:" + remoteAddr

	if err := s.client.Set(ctx, key, "1", cooldown).Err(); err != nil {
		return fmt.Errorf("failed to block address: %w", err)
	}

	return nil
}

// IsBlocked checks whether a lockout key exists for the address.
func (s *RedisStore) IsBlocked(ctx context.Context, remoteAddr string) (bool, error) {
	key := s.prefix + "blocked:" + remoteAddr

	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lockout: %w", err)
	}

	return val > 0, nil
}
