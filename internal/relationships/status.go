package relationships

// Resolve maps a user id to its relationship status relative to the snapshot's
// local user. Membership is checked in fixed priority order: self, friend,
// incoming, outgoing, none. Pure function, safe to call on every render.
func Resolve(id UserID, s Snapshot) Status {
	switch {
	case id == s.Self:
		return StatusSelf
	case s.Contains(SetFriends, id):
		return StatusFriend
	case s.Contains(SetIncoming, id):
		return StatusIncomingPending
	case s.Contains(SetOutgoing, id):
		return StatusOutgoingPending
	default:
		return StatusNone
	}
}
