package relationships

// EventType tags the kind of relationship change a push event describes.
type EventType string

const (
	EventRequestSent     EventType = "requestSent"
	EventRequestAccepted EventType = "requestAccepted"
	EventRequestDeclined EventType = "requestDeclined"
	EventFriendRemoved   EventType = "friendRemoved"
)

// Known reports whether the event type is one the reconciler understands.
func (t EventType) Known() bool {
	switch t {
	case EventRequestSent, EventRequestAccepted, EventRequestDeclined, EventFriendRemoved:
		return true
	}
	return false
}

// Event is a push notification describing a relationship mutation performed
// remotely. The transport gives no ordering or deduplication guarantees, so
// consumers must tolerate duplicated and reordered events.
type Event struct {
	Type EventType
	From UserID
	To   UserID
}

// Counterpart returns the participant that is not the given local user, and
// whether the local user participates in the event at all.
func (e Event) Counterpart(local UserID) (UserID, bool) {
	switch local {
	case e.From:
		return e.To, true
	case e.To:
		return e.From, true
	default:
		return "", false
	}
}
