package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service stores opaque byte values with a TTL.
type Service interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// maxKeyLen is where Key switches to hashing the variable part.
const maxKeyLen = 200

// Key joins parts with ':' and hashes the tail when the result is too long.
func Key(prefix string, parts ...string) string {
	tail := strings.Join(parts, ":")
	if len(prefix)+1+len(tail) > maxKeyLen {
		sum := sha1.Sum([]byte(tail))
		tail = hex.EncodeToString(sum[:])
	}
	return prefix + ":" + tail
}
