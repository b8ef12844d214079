package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider implements Provider with an in-process map. Suitable for
// single-instance deployments and tests; entries do not survive restarts.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]memoryItem
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]memoryItem)}
}

// Get returns the value for key or ErrCacheMiss when absent or expired.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	it, ok := p.data[key]
	p.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if !it.expiresAt.IsZero() && time.Now().After(it.expiresAt) {
		p.mu.Lock()
		delete(p.data, key)
		p.mu.Unlock()
		return nil, ErrCacheMiss
	}
	value := make([]byte, len(it.value))
	copy(value, it.value)
	return value, nil
}

// Set stores value under key with the provided TTL (zero means no expiry).
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = newMemoryItem(value, ttl)
	return nil
}

// SetNX stores the value only when the key is absent or expired.
func (p *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if it, ok := p.data[key]; ok {
		if it.expiresAt.IsZero() || time.Now().Before(it.expiresAt) {
			return false, nil
		}
	}
	p.data[key] = newMemoryItem(value, ttl)
	return true, nil
}

// Del removes a key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

// Close releases the map.
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = make(map[string]memoryItem)
	return nil
}

func newMemoryItem(value []byte, ttl time.Duration) memoryItem {
	stored := make([]byte, len(value))
	copy(stored, value)
	it := memoryItem{value: stored}
	if ttl > 0 {
		it.expiresAt = time.Now().Add(ttl)
	}
	return it
}
