package lti

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisNoncePrefix = "twill:lti_nonce:"

// NonceStore remembers launch nonces so a signed launch cannot be replayed.
type NonceStore interface {
	// Claim records nonce for ttl and reports whether it was unseen.
	Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// MemoryNonceStore keeps nonces in process. Expired entries are swept on each claim.
type MemoryNonceStore struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	nowTime func() time.Time
}

func NewMemoryNonceStore(nowTime func() time.Time) *MemoryNonceStore {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &MemoryNonceStore{
		seen:    make(map[string]time.Time),
		nowTime: nowTime,
	}
}

func (s *MemoryNonceStore) Claim(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	now := s.nowTime()

	s.mu.Lock()
	defer s.mu.Unlock()

	for n, expires := range s.seen {
		if now.After(expires) {
			delete(s.seen, n)
		}
	}
	if _, exists := s.seen[nonce]; exists {
		return false, nil
	}
	s.seen[nonce] = now.Add(ttl)
	return true, nil
}

// RedisNonceStore shares seen nonces between instances using SETNX with a TTL.
type RedisNonceStore struct {
	client redis.UniversalClient
}

func NewRedisNonceStore(client redis.UniversalClient) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, redisNoncePrefix+nonce, 1, ttl).Result()
}
