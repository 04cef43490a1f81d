package cache

import (
	"context"
	"time"
)

// LayeredCache reads memory first, then the remote layer, and writes through both.
type LayeredCache struct {
	local  *MemoryCache
	remote Service
	l1TTL  time.Duration
}

// NewLayeredCache puts an in-memory L1 in front of remote. Values promoted
// from the remote layer live in L1 for l1TTL.
func NewLayeredCache(remote Service, l1TTL time.Duration, opts ...MemoryOption) *LayeredCache {
	return &LayeredCache{
		local:  NewMemoryCache(opts...),
		remote: remote,
		l1TTL:  l1TTL,
	}
}

func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if b, err := lc.local.Get(ctx, key); err == nil {
		return b, nil
	}
	b, err := lc.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = lc.local.Set(ctx, key, b, lc.l1TTL)
	return b, nil
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := lc.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	l1 := ttl
	if lc.l1TTL > 0 && (l1 <= 0 || lc.l1TTL < l1) {
		l1 = lc.l1TTL
	}
	return lc.local.Set(ctx, key, value, l1)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.local.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) Close() error {
	_ = lc.local.Close()
	return lc.remote.Close()
}
