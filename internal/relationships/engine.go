package relationships

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitsocial/backend/internal/logging"
)

// Service combines everything the engine needs from the remote relationship
// store: the five mutation calls and the three paginated list calls.
type Service interface {
	Mutator
	PageLister
}

// EventSource delivers push events until the context is cancelled or the
// transport fails. Implementations live in internal/push.
type EventSource interface {
	Listen(ctx context.Context, deliver func(Event)) error
}

// Options tunes engine construction. Zero values select defaults.
type Options struct {
	PageSize        int
	DispatchTimeout time.Duration
	Logger          *slog.Logger
}

// Engine is the UI-facing surface of the synchronization core. It exposes
// snapshots, the five dispatcher actions, status resolution, pagination, and
// a run loop consuming a push-event source. Raw network objects never cross
// this boundary.
type Engine struct {
	store      *Store
	dispatcher *Dispatcher
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewEngine wires a store, dispatcher, and reconciler for the given local user.
func NewEngine(self UserID, svc Service, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := NewStore(self, svc, opts.PageSize, logger)
	return &Engine{
		store:      store,
		dispatcher: NewDispatcher(store, svc, opts.DispatchTimeout, logger),
		reconciler: NewReconciler(store, self, logger),
		logger:     logger,
	}
}

// Snapshot returns the current immutable view of the three sets.
func (e *Engine) Snapshot() Snapshot { return e.store.Snapshot() }

// ResolveStatus returns the display status of the given user.
func (e *Engine) ResolveStatus(id UserID) Status { return Resolve(id, e.store.Snapshot()) }

// Subscribe registers a listener for snapshot changes.
func (e *Engine) Subscribe(fn func(Snapshot)) func() { return e.store.Subscribe(fn) }

// Request sends a friend request.
func (e *Engine) Request(ctx context.Context, target UserID) error {
	return e.dispatcher.Request(ctx, target)
}

// Accept accepts an incoming request.
func (e *Engine) Accept(ctx context.Context, requester UserID) error {
	return e.dispatcher.Accept(ctx, requester)
}

// Decline declines an incoming request.
func (e *Engine) Decline(ctx context.Context, requester UserID) error {
	return e.dispatcher.Decline(ctx, requester)
}

// Cancel withdraws an outgoing request.
func (e *Engine) Cancel(ctx context.Context, target UserID) error {
	return e.dispatcher.Cancel(ctx, target)
}

// Remove ends a friendship.
func (e *Engine) Remove(ctx context.Context, friend UserID) error {
	return e.dispatcher.Remove(ctx, friend)
}

// LoadFirstPage fetches the first page of the named set.
func (e *Engine) LoadFirstPage(ctx context.Context, set SetName) error {
	return e.store.LoadFirstPage(ctx, set)
}

// LoadNextPage fetches the next page of the named set.
func (e *Engine) LoadNextPage(ctx context.Context, set SetName) error {
	return e.store.LoadNextPage(ctx, set)
}

// HasMore reports whether the named set has further pages.
func (e *Engine) HasMore(set SetName) bool { return e.store.HasMore(set) }

// Apply feeds a single push event to the reconciler. Exposed for transports
// that deliver events outside a Run loop.
func (e *Engine) Apply(ctx context.Context, ev Event) { e.reconciler.Apply(ctx, ev) }

// Resync re-fetches the first page of every set, replacing local contents
// with the server's view. This clears entries the server no longer reports,
// including incoming requests cancelled from another device, for which no
// push event exists.
func (e *Engine) Resync(ctx context.Context) error {
	ctx, span := logging.StartSpan(ctx, "relationships.resync")
	defer span.End()

	for _, set := range Sets {
		if err := e.store.LoadFirstPage(ctx, set); err != nil {
			return fmt.Errorf("resync: %w", err)
		}
	}
	return nil
}

// Reset clears all local relationship state, e.g. on logout.
func (e *Engine) Reset() { e.store.Reset() }

// Run performs an initial resync and then consumes the push source until the
// context is cancelled or the source fails. Periodic resyncs, when enabled,
// sweep up changes the push channel dropped.
func (e *Engine) Run(ctx context.Context, src EventSource, resyncEvery time.Duration) error {
	if err := e.Resync(ctx); err != nil {
		return err
	}

	if resyncEvery > 0 {
		go func() {
			ticker := time.NewTicker(resyncEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := e.Resync(ctx); err != nil {
						e.logger.Warn("periodic resync failed", "error", err)
					}
				}
			}
		}()
	}

	return src.Listen(ctx, func(ev Event) {
		e.reconciler.Apply(ctx, ev)
	})
}
