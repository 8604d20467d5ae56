package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements Cache interface using in-memory storage. It is local
// to one process, so revocations do not reach other replicas.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]*cacheItem
	now  func() time.Time
	done chan struct{}
	once sync.Once
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	mc := &MemoryCache{
		data: make(map[string]*cacheItem),
		now:  time.Now,
		done: make(chan struct{}),
	}

	go mc.cleanup(time.Minute)

	return mc
}

// Set stores a value in cache
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = &cacheItem{
		value:      value,
		expiration: m.now().Add(ttl),
	}
	return nil
}

// Get retrieves a value from cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.data[key]
	if !exists || m.now().After(item.expiration) {
		return nil, ErrCacheMiss
	}
	return item.value, nil
}

// Exists checks if a key exists
func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if err == ErrCacheMiss {
		return false, nil
	}
	return err == nil, err
}

// Ping always succeeds
func (m *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cleanup goroutine
func (m *MemoryCache) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

// cleanup periodically removes expired items
func (m *MemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryCache) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, item := range m.data {
		if now.After(item.expiration) {
			delete(m.data, key)
		}
	}
}
