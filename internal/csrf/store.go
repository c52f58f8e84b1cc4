// Package csrf provides a process-local, single-use CSRF token pool.
//
// Tokens are short-lived and per-process correctness is sufficient for
// anti-forgery, so no external store is involved. When a deployment runs
// multiple processes, a token issued by one process is invalid on another;
// substitute a shared store before scaling out.
package csrf

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultTTL is the absolute lifetime of an issued token.
const DefaultTTL = time.Hour

// gcThreshold is the live-set size above which Issue sweeps expired entries.
const gcThreshold = 1000

// Store issues and consumes single-use CSRF tokens.
type Store interface {
	// Issue generates a random token valid for the store's TTL.
	Issue() (string, error)
	// Validate consumes the token. It returns false for unknown, expired, or
	// already-consumed tokens; on success the token is removed before
	// returning, so a second call with the same token returns false.
	Validate(token string) bool
}

// MemoryStore is an in-memory Store. Construct one per server; there is no
// package-level instance, so tests get isolated state.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]time.Time // token -> absolute expiry
	ttl  time.Duration
	nowF func() time.Time
}

// NewMemoryStore returns a MemoryStore with the given token TTL.
// A non-positive ttl falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		m:    make(map[string]time.Time),
		ttl:  ttl,
		nowF: time.Now,
	}
}

// Issue generates a 32-byte random token and records its expiry. When the
// live set has grown past gcThreshold, expired entries are swept first.
func (s *MemoryStore) Issue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.m) > gcThreshold {
		now := s.nowF()
		for k, exp := range s.m {
			if exp.Before(now) {
				delete(s.m, k)
			}
		}
	}
	s.m[token] = s.nowF().Add(s.ttl)
	return token, nil
}

// Validate consumes the token under the lock; removal happens regardless of
// what the caller does next. There is no peek operation.
func (s *MemoryStore) Validate(token string) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.m[token]
	if !ok {
		return false
	}
	delete(s.m, token)
	return exp.After(s.nowF())
}

// Len returns the current live-set size. Used by tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
