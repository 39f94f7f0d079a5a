package directory

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrResolverUnavailable indicates no avatar resolver is configured.
	ErrResolverUnavailable = errors.New("avatar resolver unavailable")
)

type avatarEntry struct {
	url     string
	expires time.Time
}

// CachingResolver wraps another AvatarResolver with a TTL-based in-memory
// cache. Presigned URLs expire, so cached entries do too.
type CachingResolver struct {
	base AvatarResolver
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]avatarEntry
}

// NewCachingResolver returns an AvatarResolver that caches lookups for the
// provided TTL.
func NewCachingResolver(base AvatarResolver, ttl time.Duration) *CachingResolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingResolver{
		base:  base,
		ttl:   ttl,
		items: make(map[string]avatarEntry),
	}
}

// Resolve returns a cached URL when available, otherwise it delegates to the
// underlying resolver and stores the result.
func (c *CachingResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if c == nil || c.base == nil {
		return "", ErrResolverUnavailable
	}

	now := time.Now()

	c.mu.RLock()
	entry, ok := c.items[ref]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.url, nil
	}

	url, err := c.base.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.items[ref] = avatarEntry{url: url, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return url, nil
}

var _ AvatarResolver = (*CachingResolver)(nil)
