package relationships

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Page is one page of user ids fetched from the remote store. An empty
// NextCursor means the listing is exhausted.
type Page struct {
	IDs        []UserID
	NextCursor string
}

// PageLister captures the paginated list calls the store needs from the
// remote relationship service.
type PageLister interface {
	ListFriends(ctx context.Context, cursor string, limit int) (Page, error)
	ListIncoming(ctx context.Context, cursor string, limit int) (Page, error)
	ListOutgoing(ctx context.Context, cursor string, limit int) (Page, error)
}

// cursorState tracks pagination progress for one set.
type cursorState struct {
	fetched bool
	next    string
	done    bool
}

type pageLoad struct {
	done chan struct{}
	err  error
}

// Store holds the three relationship sets for the local user behind a narrow
// mutation API. Snapshots are immutable values published atomically, so
// readers never observe a partially applied patch.
type Store struct {
	lister   PageLister
	pageSize int
	logger   *slog.Logger

	mu      sync.Mutex
	snap    Snapshot
	cursors map[SetName]*cursorState
	loads   map[SetName]*pageLoad

	nextSub int
	subs    map[int]func(Snapshot)
}

// NewStore constructs an empty store for the given local user.
func NewStore(self UserID, lister PageLister, pageSize int, logger *slog.Logger) *Store {
	if pageSize <= 0 {
		pageSize = 25
	}
	if logger == nil {
		logger = slog.Default()
	}
	st := &Store{
		lister:   lister,
		pageSize: pageSize,
		logger:   logger,
		snap:     Snapshot{Self: self},
		cursors:  make(map[SetName]*cursorState),
		loads:    make(map[SetName]*pageLoad),
		subs:     make(map[int]func(Snapshot)),
	}
	for _, set := range Sets {
		st.cursors[set] = &cursorState{}
	}
	return st
}

// Snapshot returns the current immutable snapshot.
func (st *Store) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snap
}

// ApplyPatch applies the patch and publishes the resulting snapshot to
// subscribers. It returns the new snapshot.
func (st *Store) ApplyPatch(p Patch) Snapshot {
	st.mu.Lock()
	next := p.apply(st.snap)
	changed := !equalSnapshots(st.snap, next)
	st.snap = next
	subs := st.subscribersLocked()
	st.mu.Unlock()

	if changed {
		notify(subs, next)
	}
	return next
}

// Subscribe registers a listener invoked with each new snapshot after a patch
// or page load lands. The returned function cancels the subscription.
func (st *Store) Subscribe(fn func(Snapshot)) func() {
	st.mu.Lock()
	id := st.nextSub
	st.nextSub++
	st.subs[id] = fn
	st.mu.Unlock()

	return func() {
		st.mu.Lock()
		delete(st.subs, id)
		st.mu.Unlock()
	}
}

// HasMore reports whether the named set has further pages to fetch. It is
// true for a set whose first page has not been requested yet.
func (st *Store) HasMore(set SetName) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	cur := st.cursors[set]
	return cur != nil && !cur.done
}

// LoadFirstPage fetches the first page for the named set, replacing its
// current contents and restarting its cursor. Entries the server no longer
// reports are dropped, which is also how stale state left by remote-side
// cancellations gets cleared.
func (st *Store) LoadFirstPage(ctx context.Context, set SetName) error {
	l, err := st.beginLoad(ctx, set)
	if err != nil {
		return err
	}

	page, err := st.list(ctx, set, "")

	st.mu.Lock()
	delete(st.loads, set)
	var subs []func(Snapshot)
	var next Snapshot
	if err == nil {
		st.applyPageLocked(set, page, true)
		next = st.snap
		subs = st.subscribersLocked()
	}
	l.err = err
	st.mu.Unlock()
	close(l.done)

	if err != nil {
		return fmt.Errorf("load first %s page: %w", set, err)
	}
	notify(subs, next)
	return nil
}

// LoadNextPage appends the next page for the named set, or fetches the first
// page when none has been requested yet. It is a no-op once the listing is
// exhausted, and a call issued while another load for the same set is in
// flight waits for that load instead of duplicating the fetch.
func (st *Store) LoadNextPage(ctx context.Context, set SetName) error {
	var (
		first     bool
		reqCursor string
		l         *pageLoad
	)
	for {
		st.mu.Lock()
		cur := st.cursors[set]
		if cur.fetched && cur.done {
			st.mu.Unlock()
			return nil
		}
		if inflight := st.loads[set]; inflight != nil {
			st.mu.Unlock()
			select {
			case <-inflight.done:
				return inflight.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		first = !cur.fetched
		if !first {
			reqCursor = cur.next
		}
		l = &pageLoad{done: make(chan struct{})}
		st.loads[set] = l
		st.mu.Unlock()
		break
	}

	page, err := st.list(ctx, set, reqCursor)

	st.mu.Lock()
	delete(st.loads, set)
	var subs []func(Snapshot)
	var next Snapshot
	if err == nil {
		cur := st.cursors[set]
		switch {
		case first:
			st.applyPageLocked(set, page, true)
			next = st.snap
			subs = st.subscribersLocked()
		case !cur.fetched || cur.next != reqCursor:
			// The cursor moved underneath us (reset or resync); the
			// result was requested against a superseded cursor.
			st.logger.Debug("discarding stale page result", "set", string(set), "cursor", reqCursor)
		default:
			st.applyPageLocked(set, page, false)
			next = st.snap
			subs = st.subscribersLocked()
		}
	}
	l.err = err
	st.mu.Unlock()
	close(l.done)

	if err != nil {
		return fmt.Errorf("load next %s page: %w", set, err)
	}
	notify(subs, next)
	return nil
}

// applyPageLocked folds a fetched page into the named set, either replacing
// its contents or appending, and advances the cursor. Caller holds st.mu.
func (st *Store) applyPageLocked(set SetName, page Page, replace bool) {
	if replace {
		st.snap = st.snap.withSet(set, nil)
	}
	base := len(st.snap.Members(set))
	patch := make(Patch, 0, len(page.IDs))
	for i, id := range page.IDs {
		patch = append(patch, InsertAt(set, id, base+i))
	}
	st.snap = patch.apply(st.snap)
	st.cursors[set] = &cursorState{fetched: true, next: page.NextCursor, done: page.NextCursor == ""}
}

// Reset clears all sets and cursors, e.g. on logout.
func (st *Store) Reset() {
	st.mu.Lock()
	st.snap = Snapshot{Self: st.snap.Self}
	for _, set := range Sets {
		st.cursors[set] = &cursorState{}
	}
	next := st.snap
	subs := st.subscribersLocked()
	st.mu.Unlock()

	notify(subs, next)
}

// beginLoad waits for any in-flight load on the set to settle and atomically
// registers a new one.
func (st *Store) beginLoad(ctx context.Context, set SetName) (*pageLoad, error) {
	for {
		st.mu.Lock()
		if inflight := st.loads[set]; inflight != nil {
			st.mu.Unlock()
			select {
			case <-inflight.done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		l := &pageLoad{done: make(chan struct{})}
		st.loads[set] = l
		st.mu.Unlock()
		return l, nil
	}
}

func (st *Store) list(ctx context.Context, set SetName, cursor string) (Page, error) {
	switch set {
	case SetFriends:
		return st.lister.ListFriends(ctx, cursor, st.pageSize)
	case SetIncoming:
		return st.lister.ListIncoming(ctx, cursor, st.pageSize)
	case SetOutgoing:
		return st.lister.ListOutgoing(ctx, cursor, st.pageSize)
	default:
		return Page{}, fmt.Errorf("unknown relationship set %q", set)
	}
}

func (st *Store) subscribersLocked() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(st.subs))
	for _, fn := range st.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

func equalSnapshots(a, b Snapshot) bool {
	if a.Self != b.Self {
		return false
	}
	for _, set := range Sets {
		am, bm := a.Members(set), b.Members(set)
		if len(am) != len(bm) {
			return false
		}
		for i := range am {
			if am[i] != bm[i] {
				return false
			}
		}
	}
	return true
}
