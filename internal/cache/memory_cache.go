package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is a thread-safe TTL map used when no Redis URL is configured.
// Expired entries are dropped lazily on read and swept by a janitor.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-memory KV with a background sweeper
func NewMemoryCache() *MemoryCache {
	mc := &MemoryCache{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go mc.janitor()
	return mc
}

func (mc *MemoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-mc.done:
			return
		case <-ticker.C:
			now := time.Now()
			mc.mu.Lock()
			for key, e := range mc.entries {
				if now.After(e.expiresAt) {
					delete(mc.entries, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Get retrieves a value. Misses and expired entries return ErrMiss.
func (mc *MemoryCache) Get(_ context.Context, key string) (string, error) {
	mc.mu.RLock()
	e, ok := mc.entries[key]
	mc.mu.RUnlock()
	if !ok {
		return "", ErrMiss
	}
	if time.Now().After(e.expiresAt) {
		mc.mu.Lock()
		delete(mc.entries, key)
		mc.mu.Unlock()
		return "", ErrMiss
	}
	return e.value, nil
}

// Set stores a value with TTL. Non-string values are JSON-marshaled.
func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	var data string
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
		data = string(jsonData)
	}

	mc.mu.Lock()
	mc.entries[key] = memoryEntry{value: data, expiresAt: time.Now().Add(ttl)}
	mc.mu.Unlock()
	return nil
}

// Delete removes a key
func (mc *MemoryCache) Delete(_ context.Context, key string) error {
	mc.mu.Lock()
	delete(mc.entries, key)
	mc.mu.Unlock()
	return nil
}

// IsHealthy always reports true for the in-process cache
func (mc *MemoryCache) IsHealthy() bool { return true }

// Close stops the janitor
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.done) })
	return nil
}
