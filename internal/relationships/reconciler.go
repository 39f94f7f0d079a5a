package relationships

import (
	"context"
	"log/slog"
)

// Reconciler folds asynchronously delivered push events into the store. It
// applies the same idempotent set primitives as the dispatcher, so events may
// arrive duplicated or out of order relative to local mutations without
// breaking the set invariants. The reconciler never fails: malformed or
// irrelevant events are logged and dropped.
type Reconciler struct {
	store  *Store
	self   UserID
	logger *slog.Logger
}

// NewReconciler constructs a reconciler for the given local user.
func NewReconciler(store *Store, self UserID, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, self: self, logger: logger}
}

// Apply folds one push event into the store.
func (r *Reconciler) Apply(ctx context.Context, ev Event) {
	logger := r.logger
	other, involved := ev.Counterpart(r.self)
	if !involved {
		// Event for a conversation we are not part of; drop silently.
		return
	}

	var patch Patch
	switch ev.Type {
	case EventRequestSent:
		if r.self == ev.To {
			patch = Patch{Insert(SetIncoming, ev.From)}
		} else {
			// Echo of our own request, possibly after the optimistic
			// patch already landed. Insert is idempotent either way.
			patch = Patch{Insert(SetOutgoing, ev.To)}
		}
	case EventRequestAccepted:
		patch = Patch{
			Remove(SetIncoming, other),
			Remove(SetOutgoing, other),
			Insert(SetFriends, other),
		}
	case EventRequestDeclined:
		patch = Patch{
			Remove(SetIncoming, other),
			Remove(SetOutgoing, other),
		}
	case EventFriendRemoved:
		patch = Patch{Remove(SetFriends, other)}
	default:
		logger.Warn("dropping unknown push event type",
			slog.String("type", string(ev.Type)),
			slog.String("from", string(ev.From)),
			slog.String("to", string(ev.To)),
		)
		return
	}

	r.store.ApplyPatch(patch)
	logger.Debug("reconciled push event", slog.String("type", string(ev.Type)), slog.String("counterpart", string(other)))
}
