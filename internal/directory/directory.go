package directory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/orbitsocial/backend/internal/relationships"
)

// Profile is the lightweight display metadata a directory row carries. It is
// opaque to the sync core; relationship status is overlaid per row at render
// time via the status resolver.
type Profile struct {
	ID          relationships.UserID
	DisplayName string
	AvatarRef   string
	FriendCount int
	EventCount  int
}

// Page is one page of directory profiles. An empty NextCursor means the
// listing is exhausted.
type Page struct {
	Items      []Profile
	NextCursor string
}

// Service captures the two paginated listing modes the directory consumes.
type Service interface {
	ListUsers(ctx context.Context, cursor string, limit int) (Page, error)
	SearchUsers(ctx context.Context, query string, cursor string, limit int) (Page, error)
}

// AvatarResolver turns an opaque avatar reference into a fetchable URL.
type AvatarResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Entry is a directory row ready for display.
type Entry struct {
	Profile
	AvatarURL string
}

type browserLoad struct {
	done chan struct{}
	err  error
}

// Browser pages through the user directory in one of two modes: unfiltered
// listing or search-filtered listing. Switching modes starts a fresh cursor
// sequence; a page fetched under a superseded mode is discarded.
type Browser struct {
	svc      Service
	avatars  AvatarResolver
	pageSize int
	logger   *slog.Logger

	mu       sync.Mutex
	query    string
	gen      int
	entries  []Entry
	fetched  bool
	next     string
	done     bool
	inflight *browserLoad
}

// NewBrowser constructs a directory browser. The avatar resolver may be nil,
// in which case entries carry only the raw avatar reference.
func NewBrowser(svc Service, avatars AvatarResolver, pageSize int, logger *slog.Logger) *Browser {
	if pageSize <= 0 {
		pageSize = 25
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{svc: svc, avatars: avatars, pageSize: pageSize, logger: logger}
}

// SetQuery switches between unfiltered and search mode. A transition resets
// the cursor sequence and clears accumulated entries rather than merging.
func (b *Browser) SetQuery(query string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if query == b.query {
		return
	}
	b.query = query
	b.gen++
	b.entries = nil
	b.fetched = false
	b.next = ""
	b.done = false
}

// Query returns the active search query, empty in unfiltered mode.
func (b *Browser) Query() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// Entries returns the accumulated directory rows for the active mode.
func (b *Browser) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// HasMore reports whether further pages remain in the active mode.
func (b *Browser) HasMore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.done
}

// LoadMore fetches the next page in the active mode and appends it. A call
// issued while another load is in flight waits for that load instead of
// duplicating the fetch, and a result that lands after the mode or cursor
// moved on is discarded.
func (b *Browser) LoadMore(ctx context.Context) error {
	var (
		query  string
		gen    int
		cursor string
		l      *browserLoad
	)
	for {
		b.mu.Lock()
		if b.fetched && b.done {
			b.mu.Unlock()
			return nil
		}
		if inflight := b.inflight; inflight != nil {
			b.mu.Unlock()
			select {
			case <-inflight.done:
				return inflight.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		query = b.query
		gen = b.gen
		cursor = b.next
		l = &browserLoad{done: make(chan struct{})}
		b.inflight = l
		b.mu.Unlock()
		break
	}

	var (
		page Page
		err  error
	)
	if query == "" {
		page, err = b.svc.ListUsers(ctx, cursor, b.pageSize)
	} else {
		page, err = b.svc.SearchUsers(ctx, query, cursor, b.pageSize)
	}
	if err != nil {
		err = fmt.Errorf("load directory page: %w", err)
	}

	var entries []Entry
	if err == nil {
		entries = make([]Entry, 0, len(page.Items))
		for _, profile := range page.Items {
			entry := Entry{Profile: profile}
			if b.avatars != nil && profile.AvatarRef != "" {
				url, resolveErr := b.avatars.Resolve(ctx, profile.AvatarRef)
				if resolveErr != nil {
					b.logger.Warn("avatar resolution failed", "ref", profile.AvatarRef, "error", resolveErr)
				} else {
					entry.AvatarURL = url
				}
			}
			entries = append(entries, entry)
		}
	}

	b.mu.Lock()
	b.inflight = nil
	if err == nil {
		switch {
		case b.gen != gen:
			// Mode changed while the fetch was in flight.
			b.logger.Debug("discarding stale directory page", "query", query)
		case b.fetched && b.next != cursor:
			// The cursor moved underneath us; the result was requested against
			// a superseded position.
			b.logger.Debug("discarding stale directory page", "query", query, "cursor", cursor)
		default:
			b.entries = append(b.entries, entries...)
			b.fetched = true
			b.next = page.NextCursor
			b.done = page.NextCursor == ""
		}
	}
	l.err = err
	b.mu.Unlock()
	close(l.done)

	return err
}
