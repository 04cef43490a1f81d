package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
	lastUsed time.Time
}

// MemoryCache is an in-process Service with TTL expiry and LRU eviction.
type MemoryCache struct {
	mu         sync.Mutex
	data       map[string]*memoryItem
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache creates an in-memory cache and starts its cleanup loop.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		DefaultTTL:      time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	mc := &MemoryCache{
		data:       make(map[string]*memoryItem),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go mc.cleanupLoop(cfg.CleanupInterval)
	return mc
}

func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	now := mc.now()
	if now.After(item.expireAt) {
		delete(mc.data, key)
		return nil, ErrCacheMiss
	}
	item.lastUsed = now
	return append([]byte(nil), item.value...), nil
}

func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if ttl <= 0 {
		ttl = mc.defaultTTL
	}
	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	now := mc.now()
	mc.data[key] = &memoryItem{
		value:    append([]byte(nil), value...),
		expireAt: now.Add(ttl),
		lastUsed: now,
	}
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.data, k)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stop) })
	return nil
}

// evictLRU must be called with mu held.
func (mc *MemoryCache) evictLRU() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, item := range mc.data {
		if oldestKey == "" || item.lastUsed.Before(oldest) {
			oldestKey, oldest = k, item.lastUsed
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanupLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-ticker.C:
			mc.mu.Lock()
			now := mc.now()
			for k, item := range mc.data {
				if now.After(item.expireAt) {
					delete(mc.data, k)
				}
			}
			mc.mu.Unlock()
		}
	}
}
