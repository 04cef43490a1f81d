package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter hands out one token bucket per key, e.g. per client IP. Buckets
// idle for longer than the idle window are evicted on the next sweep.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time
	swept time.Time
}

// New returns a per-key limiter allowing perSec events per second with the
// given burst. A non-positive perSec disables limiting.
func New(perSec float64, burst int, idle time.Duration) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	lim := rate.Limit(perSec)
	if perSec <= 0 {
		lim = rate.Inf
	}
	return &Limiter{
		m:     make(map[string]*entry),
		limit: lim,
		burst: burst,
		idle:  idle,
		now:   time.Now,
	}
}

// Allow reports whether one event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) >= l.idle {
		l.sweep(now)
	}

	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.m {
		if now.Sub(e.seen) >= l.idle {
			delete(l.m, k)
		}
	}
	l.swept = now
}
