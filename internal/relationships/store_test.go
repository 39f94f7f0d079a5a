package relationships

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// stubLister serves scripted pages and counts calls. A non-nil release
// channel blocks each fetch until the test unblocks it.
type stubLister struct {
	mu      sync.Mutex
	pages   map[SetName][]Page
	calls   map[SetName]int
	release chan struct{}
	err     error
}

func newStubLister() *stubLister {
	return &stubLister{
		pages: make(map[SetName][]Page),
		calls: make(map[SetName]int),
	}
}

func (s *stubLister) serve(set SetName) (Page, error) {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Page{}, s.err
	}
	idx := s.calls[set]
	s.calls[set]++
	queue := s.pages[set]
	if idx >= len(queue) {
		return Page{}, nil
	}
	return queue[idx], nil
}

func (s *stubLister) callCount(set SetName) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[set]
}

func (s *stubLister) ListFriends(context.Context, string, int) (Page, error) {
	return s.serve(SetFriends)
}

func (s *stubLister) ListIncoming(context.Context, string, int) (Page, error) {
	return s.serve(SetIncoming)
}

func (s *stubLister) ListOutgoing(context.Context, string, int) (Page, error) {
	return s.serve(SetOutgoing)
}

func TestStoreLoadPagesAppendAndExhaust(t *testing.T) {
	lister := newStubLister()
	lister.pages[SetFriends] = []Page{
		{IDs: []UserID{"a", "b"}, NextCursor: "c2"},
		{IDs: []UserID{"c"}},
	}
	store := NewStore("me", lister, 2, nil)
	ctx := context.Background()

	if err := store.LoadFirstPage(ctx, SetFriends); err != nil {
		t.Fatalf("first page: %v", err)
	}
	if got := store.Snapshot().Friends; !reflect.DeepEqual(got, []UserID{"a", "b"}) {
		t.Fatalf("unexpected friends after first page: %v", got)
	}
	if !store.HasMore(SetFriends) {
		t.Fatal("expected more pages")
	}

	if err := store.LoadNextPage(ctx, SetFriends); err != nil {
		t.Fatalf("next page: %v", err)
	}
	if got := store.Snapshot().Friends; !reflect.DeepEqual(got, []UserID{"a", "b", "c"}) {
		t.Fatalf("unexpected friends after second page: %v", got)
	}
	if store.HasMore(SetFriends) {
		t.Fatal("expected listing exhausted")
	}

	// Exhausted listing: further calls are no-ops without fetches.
	if err := store.LoadNextPage(ctx, SetFriends); err != nil {
		t.Fatalf("no-op page: %v", err)
	}
	if got := lister.callCount(SetFriends); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
}

func TestStoreCoalescesConcurrentLoads(t *testing.T) {
	lister := newStubLister()
	lister.pages[SetIncoming] = []Page{{IDs: []UserID{"r1"}}}
	lister.release = make(chan struct{})
	store := NewStore("me", lister, 10, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = store.LoadNextPage(ctx, SetIncoming)
		}(i)
	}

	// Give both goroutines time to reach the store before releasing.
	time.Sleep(20 * time.Millisecond)
	close(lister.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if got := lister.callCount(SetIncoming); got != 1 {
		t.Fatalf("expected coalesced single fetch, got %d", got)
	}
	if got := store.Snapshot().Incoming; !reflect.DeepEqual(got, []UserID{"r1"}) {
		t.Fatalf("unexpected incoming: %v", got)
	}
}

func TestStoreDiscardsStalePageAfterReset(t *testing.T) {
	lister := newStubLister()
	lister.pages[SetOutgoing] = []Page{
		{IDs: []UserID{"o1"}, NextCursor: "c2"},
		{IDs: []UserID{"o2"}},
	}
	store := NewStore("me", lister, 1, nil)
	ctx := context.Background()

	if err := store.LoadFirstPage(ctx, SetOutgoing); err != nil {
		t.Fatalf("first page: %v", err)
	}

	release := make(chan struct{})
	lister.release = release

	done := make(chan error, 1)
	go func() {
		done <- store.LoadNextPage(ctx, SetOutgoing)
	}()

	time.Sleep(20 * time.Millisecond)
	store.Reset()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("next page: %v", err)
	}

	// The fetch was issued against a cursor that Reset invalidated.
	if got := store.Snapshot().Outgoing; len(got) != 0 {
		t.Fatalf("expected stale page discarded, got %v", got)
	}
}

func TestStoreSubscribePublishesSnapshots(t *testing.T) {
	store := NewStore("me", newStubLister(), 10, nil)

	var mu sync.Mutex
	var seen []Snapshot
	cancel := store.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	store.ApplyPatch(Patch{Insert(SetOutgoing, "v")})
	store.ApplyPatch(Patch{Insert(SetOutgoing, "v")}) // no change, no notification

	mu.Lock()
	count := len(seen)
	mu.Unlock()
	if count != 1 {
		t.Fatalf("expected 1 notification, got %d", count)
	}

	cancel()
	store.ApplyPatch(Patch{Remove(SetOutgoing, "v")})

	mu.Lock()
	count = len(seen)
	mu.Unlock()
	if count != 1 {
		t.Fatalf("expected no notification after cancel, got %d", count)
	}
}

func TestStoreFirstPageReplacesContents(t *testing.T) {
	lister := newStubLister()
	lister.pages[SetIncoming] = []Page{
		{IDs: []UserID{"stale", "kept"}},
		{IDs: []UserID{"kept", "fresh"}},
	}
	store := NewStore("me", lister, 10, nil)
	ctx := context.Background()

	if err := store.LoadFirstPage(ctx, SetIncoming); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := store.LoadFirstPage(ctx, SetIncoming); err != nil {
		t.Fatalf("second load: %v", err)
	}

	got := store.Snapshot().Incoming
	if !reflect.DeepEqual(got, []UserID{"kept", "fresh"}) {
		t.Fatalf("expected replaced contents, got %v", got)
	}
}

func TestStoreLoadErrorPropagates(t *testing.T) {
	lister := newStubLister()
	lister.err = fmt.Errorf("boom")
	store := NewStore("me", lister, 10, nil)

	if err := store.LoadFirstPage(context.Background(), SetFriends); err == nil {
		t.Fatal("expected error")
	}
	if got := store.Snapshot().Friends; len(got) != 0 {
		t.Fatalf("expected empty set after failed load, got %v", got)
	}
}
