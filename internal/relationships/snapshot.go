package relationships

import "fmt"

// Snapshot is an immutable view of the three relationship sets at a point in
// time. Mutations always produce a new Snapshot; the slices held by one must
// never be written through.
type Snapshot struct {
	Self     UserID
	Friends  []UserID
	Incoming []UserID
	Outgoing []UserID
}

// Members returns the ordered members of the named set. The returned slice is
// shared and must be treated as read-only.
func (s Snapshot) Members(set SetName) []UserID {
	switch set {
	case SetFriends:
		return s.Friends
	case SetIncoming:
		return s.Incoming
	case SetOutgoing:
		return s.Outgoing
	default:
		return nil
	}
}

// Contains reports whether id is a member of the named set.
func (s Snapshot) Contains(set SetName, id UserID) bool {
	return s.indexOf(set, id) >= 0
}

func (s Snapshot) indexOf(set SetName, id UserID) int {
	for i, member := range s.Members(set) {
		if member == id {
			return i
		}
	}
	return -1
}

// tracked reports whether id is a member of any of the three sets.
func (s Snapshot) tracked(id UserID) bool {
	return s.Contains(SetFriends, id) || s.Contains(SetIncoming, id) || s.Contains(SetOutgoing, id)
}

// Validate checks the snapshot invariants: a user id appears in at most one
// set, and the local user's own id appears in none.
func (s Snapshot) Validate() error {
	seen := make(map[UserID]SetName)
	for _, set := range Sets {
		for _, id := range s.Members(set) {
			if id == s.Self {
				return fmt.Errorf("own id %q present in %s set", id, set)
			}
			if prev, ok := seen[id]; ok {
				return fmt.Errorf("id %q present in both %s and %s sets", id, prev, set)
			}
			seen[id] = set
		}
	}
	return nil
}

// withSet returns a copy of the snapshot with the named set replaced.
func (s Snapshot) withSet(set SetName, members []UserID) Snapshot {
	switch set {
	case SetFriends:
		s.Friends = members
	case SetIncoming:
		s.Incoming = members
	case SetOutgoing:
		s.Outgoing = members
	}
	return s
}
