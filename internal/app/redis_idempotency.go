/**
 * @description
 * Redis-backed idempotency guard for mutating ledger operations. A caller
 * that retries a request (network timeout, client crash) can supply the same
 * idempotency key; the second attempt is rejected instead of double-posting.
 * Keys are claimed with SET NX and expire after a configured TTL.
 */

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyGuard reserves operation keys. Reserve returns true when the key
// was fresh and is now claimed, false when it was already claimed.
type IdempotencyGuard interface {
	Reserve(ctx context.Context, key string) (bool, error)
}

// RedisIdempotencyGuard implements distributed duplicate suppression using Redis.
type RedisIdempotencyGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisIdempotencyGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisIdempotencyGuard {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "ledger:idempotency"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisIdempotencyGuard{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

// Reserve claims the key with SET NX. A false result means another operation
// already claimed it within the TTL window.
func (g *RedisIdempotencyGuard) Reserve(ctx context.Context, key string) (bool, error) {
	if g == nil || g.client == nil {
		return true, nil
	}
	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return true, nil
	}

	fullKey := fmt.Sprintf("%s:%s", g.prefix, normalized)
	claimed, err := g.client.SetNX(ctx, fullKey, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return claimed, nil
}
