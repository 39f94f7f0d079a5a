package relationships

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Mutator captures the five mutation calls the dispatcher issues against the
// remote relationship store.
type Mutator interface {
	SendRequest(ctx context.Context, target UserID) error
	AcceptRequest(ctx context.Context, requester UserID) error
	DeclineRequest(ctx context.Context, requester UserID) error
	CancelRequest(ctx context.Context, target UserID) error
	RemoveFriend(ctx context.Context, friend UserID) error
}

// pendingMutation is the record of an optimistic patch between dispatch and
// settlement. On failure the inverse patch restores the exact pre-dispatch
// snapshot; on success (or benign conflict) the applied patch stands.
type pendingMutation struct {
	action  string
	target  UserID
	applied Patch
	inverse Patch
}

// Dispatcher executes user-initiated relationship actions: it applies an
// optimistic patch synchronously, issues the remote call, and commits or
// rolls back based on the outcome. Actions against the same target are
// serialized; a second call queues behind the outstanding one.
type Dispatcher struct {
	store   *Store
	remote  Mutator
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	targets map[UserID]*targetLock
}

type targetLock struct {
	sem  chan struct{}
	refs int
}

// NewDispatcher constructs a dispatcher. A non-zero timeout bounds each remote
// call; an abandoned call rolls back exactly like an explicit failure.
func NewDispatcher(store *Store, remote Mutator, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:   store,
		remote:  remote,
		timeout: timeout,
		logger:  logger,
		targets: make(map[UserID]*targetLock),
	}
}

// Request sends a friend request to a user with no current relationship.
func (d *Dispatcher) Request(ctx context.Context, target UserID) error {
	return d.dispatch(ctx, "request", target, StatusNone,
		func(Snapshot) Patch {
			return Patch{Insert(SetOutgoing, target)}
		},
		func(ctx context.Context) error { return d.remote.SendRequest(ctx, target) })
}

// Accept accepts a pending incoming request.
func (d *Dispatcher) Accept(ctx context.Context, requester UserID) error {
	return d.dispatch(ctx, "accept", requester, StatusIncomingPending,
		func(Snapshot) Patch {
			return Patch{Remove(SetIncoming, requester), Insert(SetFriends, requester)}
		},
		func(ctx context.Context) error { return d.remote.AcceptRequest(ctx, requester) })
}

// Decline declines a pending incoming request.
func (d *Dispatcher) Decline(ctx context.Context, requester UserID) error {
	return d.dispatch(ctx, "decline", requester, StatusIncomingPending,
		func(Snapshot) Patch {
			return Patch{Remove(SetIncoming, requester)}
		},
		func(ctx context.Context) error { return d.remote.DeclineRequest(ctx, requester) })
}

// Cancel withdraws a pending outgoing request.
func (d *Dispatcher) Cancel(ctx context.Context, target UserID) error {
	return d.dispatch(ctx, "cancel", target, StatusOutgoingPending,
		func(Snapshot) Patch {
			return Patch{Remove(SetOutgoing, target)}
		},
		func(ctx context.Context) error { return d.remote.CancelRequest(ctx, target) })
}

// Remove ends an existing friendship.
func (d *Dispatcher) Remove(ctx context.Context, friend UserID) error {
	return d.dispatch(ctx, "remove", friend, StatusFriend,
		func(Snapshot) Patch {
			return Patch{Remove(SetFriends, friend)}
		},
		func(ctx context.Context) error { return d.remote.RemoveFriend(ctx, friend) })
}

func (d *Dispatcher) dispatch(ctx context.Context, action string, target UserID, want Status, build func(Snapshot) Patch, call func(context.Context) error) error {
	unlock, err := d.lockTarget(ctx, target)
	if err != nil {
		return err
	}
	defer unlock()

	snap := d.store.Snapshot()
	if got := Resolve(target, snap); got != want {
		return &PreconditionError{Action: action, Target: target, Want: want, Got: got}
	}

	patch := build(snap)
	pending := pendingMutation{
		action:  action,
		target:  target,
		applied: patch,
		inverse: patch.inverse(snap),
	}
	d.store.ApplyPatch(pending.applied)

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err = call(callCtx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict):
		// The remote store already holds the desired state; the optimistic
		// patch stands.
		d.logger.Debug("mutation already applied remotely", "action", action, "target", string(target))
		return nil
	default:
		d.store.ApplyPatch(pending.inverse)
		return fmt.Errorf("%s %s: %w", action, target, err)
	}
}

// lockTarget serializes dispatches per target id. Waiters queue on a buffered
// channel so a later action never interleaves with an outstanding one.
func (d *Dispatcher) lockTarget(ctx context.Context, target UserID) (func(), error) {
	d.mu.Lock()
	tl := d.targets[target]
	if tl == nil {
		tl = &targetLock{sem: make(chan struct{}, 1)}
		d.targets[target] = tl
	}
	tl.refs++
	d.mu.Unlock()

	release := func() {
		d.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(d.targets, target)
		}
		d.mu.Unlock()
	}

	select {
	case tl.sem <- struct{}{}:
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}

	return func() {
		<-tl.sem
		release()
	}, nil
}
