package relationships

// UserID is the opaque, stable identifier the remote store assigns to a user.
type UserID string

// SetName names one of the three relationship sets held for the local user.
type SetName string

const (
	SetFriends  SetName = "friends"
	SetIncoming SetName = "incoming"
	SetOutgoing SetName = "outgoing"
)

// Sets lists every relationship set in a fixed order, useful for iteration.
var Sets = []SetName{SetFriends, SetIncoming, SetOutgoing}

// Status classifies the local user's relationship to another user. It is
// derived from a snapshot on demand and never stored.
type Status int

const (
	StatusNone Status = iota
	StatusSelf
	StatusFriend
	StatusIncomingPending
	StatusOutgoingPending
)

// String returns the display name for the status.
func (s Status) String() string {
	switch s {
	case StatusSelf:
		return "self"
	case StatusFriend:
		return "friend"
	case StatusIncomingPending:
		return "incomingPending"
	case StatusOutgoingPending:
		return "outgoingPending"
	case StatusNone:
		return "none"
	default:
		return "unknown"
	}
}
