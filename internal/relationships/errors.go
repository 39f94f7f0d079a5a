package relationships

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict indicates the remote store reports the target is already in
	// the desired state. Dispatchers treat it as a successful no-op.
	ErrConflict = errors.New("relationship already in requested state")
	// ErrAuth indicates the remote store rejected the caller's credentials.
	// Recovery (redirect to login) happens outside this engine.
	ErrAuth = errors.New("authentication required")
)

// PreconditionError reports that a dispatched action was rejected before any
// network call because the target's current status does not permit it. It
// usually means the caller acted on a stale render, not that anything failed.
type PreconditionError struct {
	Action string
	Target UserID
	Want   Status
	Got    Status
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s %s: requires status %s, current status is %s", e.Action, e.Target, e.Want, e.Got)
}

// NetworkError wraps a transport-level failure from the remote store. These
// are retryable and trigger rollback of the optimistic patch.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
