package remote

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// callLimiter paces outbound calls per key (typically the API operation) so a
// burst of user actions cannot flood the remote store. Entries expire after
// the provided ttl when no longer used.
type callLimiter struct {
	mu      sync.Mutex
	callers map[string]*caller
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// newCallLimiter allows up to `calls` events per `window` per key, with the
// provided burst capacity.
func newCallLimiter(calls int, window time.Duration, burst int, ttl time.Duration) *callLimiter {
	if calls <= 0 {
		calls = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &callLimiter{
		callers: make(map[string]*caller),
		limit:   rate.Every(window / time.Duration(calls)),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// wait blocks until the key's limiter permits another call or the context
// expires.
func (l *callLimiter) wait(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	if key == "" {
		key = "unknown"
	}

	now := l.now()

	l.mu.Lock()
	c := l.getCallerLocked(key, now)
	l.gcLocked(now)
	l.mu.Unlock()

	return c.limiter.Wait(ctx)
}

func (l *callLimiter) getCallerLocked(key string, now time.Time) *caller {
	if c, ok := l.callers[key]; ok {
		c.lastSeen = now
		return c
	}

	c := &caller{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.callers[key] = c
	return c
}

func (l *callLimiter) gcLocked(now time.Time) {
	for key, c := range l.callers {
		if now.Sub(c.lastSeen) > l.ttl {
			delete(l.callers, key)
		}
	}
}
