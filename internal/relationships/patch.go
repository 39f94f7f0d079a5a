package relationships

type opKind int

const (
	opInsert opKind = iota
	opInsertAt
	opRemove
)

// Op is a single idempotent set primitive. Inserting an id that is already a
// member of any set is a no-op, as is removing an id that is not present, so
// patches built from Ops can be replayed and reordered safely.
type Op struct {
	kind  opKind
	set   SetName
	id    UserID
	index int
}

// Insert builds an op that adds id to the front of the named set.
func Insert(set SetName, id UserID) Op {
	return Op{kind: opInsert, set: set, id: id}
}

// InsertAt builds an op that restores id into the named set at a specific
// position, used by inverse patches to undo removals exactly.
func InsertAt(set SetName, id UserID, index int) Op {
	return Op{kind: opInsertAt, set: set, id: id, index: index}
}

// Remove builds an op that deletes id from the named set.
func Remove(set SetName, id UserID) Op {
	return Op{kind: opRemove, set: set, id: id}
}

// Patch is an ordered list of set primitives applied atomically to a snapshot.
type Patch []Op

// apply returns the snapshot that results from applying the patch. The input
// snapshot is not modified.
func (p Patch) apply(s Snapshot) Snapshot {
	for _, op := range p {
		s = op.apply(s)
	}
	return s
}

func (op Op) apply(s Snapshot) Snapshot {
	switch op.kind {
	case opInsert, opInsertAt:
		// Mutual exclusion guard: an id already tracked in any set stays
		// where it is, which keeps duplicated or late events harmless.
		if op.id == s.Self || op.id == "" || s.tracked(op.id) {
			return s
		}
		members := s.Members(op.set)
		at := 0
		if op.kind == opInsertAt {
			at = op.index
			if at < 0 {
				at = 0
			}
			if at > len(members) {
				at = len(members)
			}
		}
		next := make([]UserID, 0, len(members)+1)
		next = append(next, members[:at]...)
		next = append(next, op.id)
		next = append(next, members[at:]...)
		return s.withSet(op.set, next)
	case opRemove:
		at := s.indexOf(op.set, op.id)
		if at < 0 {
			return s
		}
		members := s.Members(op.set)
		next := make([]UserID, 0, len(members)-1)
		next = append(next, members[:at]...)
		next = append(next, members[at+1:]...)
		return s.withSet(op.set, next)
	default:
		return s
	}
}

// inverse returns the patch that undoes p when p is applied to snapshot s.
// Removals record the position they removed from so the inverse restores the
// original ordering exactly.
func (p Patch) inverse(s Snapshot) Patch {
	inv := make(Patch, 0, len(p))
	work := s
	for _, op := range p {
		switch op.kind {
		case opInsert, opInsertAt:
			if op.id != work.Self && op.id != "" && !work.tracked(op.id) {
				inv = append(inv, Remove(op.set, op.id))
			}
		case opRemove:
			if at := work.indexOf(op.set, op.id); at >= 0 {
				inv = append(inv, InsertAt(op.set, op.id, at))
			}
		}
		work = op.apply(work)
	}
	// Undo in reverse order of application.
	for i, j := 0, len(inv)-1; i < j; i, j = i+1, j-1 {
		inv[i], inv[j] = inv[j], inv[i]
	}
	return inv
}
