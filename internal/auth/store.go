package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store drivers accepted by NewStore.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Entry is one cached token, when it was obtained and the instant it stops being served.
type Entry struct {
	Token     string    `json:"token"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the authenticator's cache slot. Implementations must not return entries
// whose ExpiresAt has passed.
type Store interface {
	// Get returns the entry for key. ok is false if missing or expired.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)
	// Put stores entry for key until entry.ExpiresAt.
	Put(ctx context.Context, key string, entry Entry) error
	// Delete drops the entry for key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the store.
	Close() error
}

// StoreConfig selects and configures a Store.
type StoreConfig struct {
	Driver string
	Redis  *RedisConfig
}

// NewStore creates a Store for cfg.Driver (memory when empty).
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("auth: redis store requires redis configuration")
		}
		return NewRedisStore(ctx, *cfg.Redis)
	default:
		return nil, fmt.Errorf("auth: unsupported store driver: %s", cfg.Driver)
	}
}

// MemoryStore is an in-process Store. Expired entries are removed lazily on read.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]Entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(time.Now)
}

func newMemoryStore(nowF func() time.Time) *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]Entry),
		nowF: nowF,
	}
}

// Get returns the entry for key if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if !e.ExpiresAt.After(s.nowF()) {
		s.mu.Lock()
		// Only drop the entry we saw; a concurrent Put may have replaced it.
		if cur, ok := s.m[key]; ok && cur == e {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put stores entry for key.
func (s *MemoryStore) Put(ctx context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry
	return nil
}

// Delete drops the entry for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
