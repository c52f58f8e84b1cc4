// Package revocation records revoked tokens in Redis until their natural
// expiry. The store is optional: with no Redis configured, or when Redis is
// unreachable, IsRevoked reports false. The store is a best-effort blacklist,
// not a source of truth; session continuity wins over strict revocation when
// it is down.
package revocation

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "blacklist:"

// opTimeout bounds every Redis call so a hung store cannot stall a request.
const opTimeout = 500 * time.Millisecond

// Store is the revocation check used by the session protocol.
type Store interface {
	// Revoke records token as revoked for at most ttl. A non-positive ttl is
	// a no-op: the token has already expired on its own.
	Revoke(ctx context.Context, token string, ttl time.Duration)
	// IsRevoked reports whether token was revoked. Unreachable or
	// unconfigured stores report false.
	IsRevoked(ctx context.Context, token string) bool
}

// RedisStore implements Store on a Redis client. A nil client is valid and
// makes every operation a no-op (degraded mode).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a RedisStore using the given client, which may be nil.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Revoke stores the token under the blacklist prefix with the given TTL.
// Keys are per token, not per user; failures are logged and swallowed.
func (s *RedisStore) Revoke(ctx context.Context, token string, ttl time.Duration) {
	if s.client == nil || token == "" || ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Set(ctx, keyPrefix+token, "1", ttl).Err(); err != nil {
		log.Printf("revocation: failed to revoke token: %v", err)
	}
}

// IsRevoked checks the blacklist. Errors are treated as "not revoked".
func (s *RedisStore) IsRevoked(ctx context.Context, token string) bool {
	if s.client == nil || token == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := s.client.Exists(ctx, keyPrefix+token).Result()
	if err != nil {
		log.Printf("revocation: blacklist check failed: %v", err)
		return false
	}
	return n == 1
}
