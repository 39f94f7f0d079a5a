package relationships

import (
	"reflect"
	"testing"
)

func TestPatchInsertIsIdempotent(t *testing.T) {
	snap := Snapshot{Self: "me"}
	patch := Patch{Insert(SetOutgoing, "v")}

	once := patch.apply(snap)
	twice := patch.apply(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected identical snapshots, got %+v and %+v", once, twice)
	}
	if !once.Contains(SetOutgoing, "v") {
		t.Fatalf("expected v in outgoing: %+v", once)
	}
}

func TestPatchInsertGuardsMutualExclusion(t *testing.T) {
	snap := Snapshot{Self: "me", Friends: []UserID{"v"}}

	got := Patch{Insert(SetIncoming, "v")}.apply(snap)

	if got.Contains(SetIncoming, "v") {
		t.Fatalf("insert should be a no-op for an id already tracked: %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}

func TestPatchInsertRejectsSelf(t *testing.T) {
	snap := Snapshot{Self: "me"}

	got := Patch{Insert(SetFriends, "me")}.apply(snap)

	if got.Contains(SetFriends, "me") {
		t.Fatalf("own id must never enter a set: %+v", got)
	}
}

func TestPatchRemoveMissingIsNoOp(t *testing.T) {
	snap := Snapshot{Self: "me", Friends: []UserID{"a", "b"}}

	got := Patch{Remove(SetFriends, "z")}.apply(snap)

	if !reflect.DeepEqual(snap, got) {
		t.Fatalf("expected unchanged snapshot, got %+v", got)
	}
}

func TestPatchInsertPrepends(t *testing.T) {
	snap := Snapshot{Self: "me", Friends: []UserID{"a", "b"}}

	got := Patch{Insert(SetFriends, "c")}.apply(snap)

	want := []UserID{"c", "a", "b"}
	if !reflect.DeepEqual(got.Friends, want) {
		t.Fatalf("expected %v got %v", want, got.Friends)
	}
}

func TestPatchInverseRestoresExactSnapshot(t *testing.T) {
	snap := Snapshot{
		Self:     "me",
		Friends:  []UserID{"f1", "f2"},
		Incoming: []UserID{"i1", "i2", "i3"},
		Outgoing: []UserID{"o1"},
	}

	patches := []Patch{
		{Insert(SetOutgoing, "x")},
		{Remove(SetIncoming, "i2"), Insert(SetFriends, "i2")},
		{Remove(SetIncoming, "i1")},
		{Remove(SetOutgoing, "o1")},
		{Remove(SetFriends, "f2")},
	}

	for _, patch := range patches {
		inverse := patch.inverse(snap)
		applied := patch.apply(snap)
		restored := inverse.apply(applied)
		if !reflect.DeepEqual(snap, restored) {
			t.Fatalf("inverse of %+v did not restore snapshot: want %+v got %+v", patch, snap, restored)
		}
	}
}

func TestPatchInverseRestoresOrdering(t *testing.T) {
	snap := Snapshot{Self: "me", Incoming: []UserID{"a", "b", "c"}}

	patch := Patch{Remove(SetIncoming, "b")}
	inverse := patch.inverse(snap)
	restored := inverse.apply(patch.apply(snap))

	if !reflect.DeepEqual(restored.Incoming, []UserID{"a", "b", "c"}) {
		t.Fatalf("expected original ordering restored, got %v", restored.Incoming)
	}
}

func TestValidateDetectsDuplicates(t *testing.T) {
	bad := Snapshot{Self: "me", Friends: []UserID{"x"}, Incoming: []UserID{"x"}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error for duplicated id")
	}

	selfish := Snapshot{Self: "me", Outgoing: []UserID{"me"}}
	if err := selfish.Validate(); err == nil {
		t.Fatal("expected validation error for own id in a set")
	}
}
