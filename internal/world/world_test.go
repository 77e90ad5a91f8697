package world

import "testing"

func TestSpawn_DuplicateErrors(t *testing.T) {
	w := New()
	if err := w.Spawn(NewEntityID("alice")); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if err := w.Spawn(NewEntityID("alice")); err == nil {
		t.Fatal("expected an error spawning an existing entity twice")
	}
}

func TestSetSpaceMembers_Invariant(t *testing.T) {
	w := New()
	alice := NewEntityID("alice")
	bob := NewEntityID("bob")
	w.Spawn(alice)
	w.Spawn(bob)

	room := NewSpaceID("room")
	if err := w.SetSpaceMembers(room, []EntityID{alice, bob}); err != nil {
		t.Fatalf("SetSpaceMembers: %v", err)
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
	if !w.IsMember(alice, room) || !w.IsMember(bob, room) {
		t.Fatal("expected alice and bob to be members of #room")
	}
}

func TestSetSpaceMembers_UnknownMemberErrors(t *testing.T) {
	w := New()
	if err := w.SetSpaceMembers(NewSpaceID("room"), []EntityID{NewEntityID("ghost")}); err == nil {
		t.Fatal("expected an error naming a space with an unspawned member")
	}
}

func TestCanonicalPairSpaceID_OrderIndependent(t *testing.T) {
	a, b := EntityID("@alice"), EntityID("@bob")
	id1 := CanonicalPairSpaceID([]EntityID{a, b})
	id2 := CanonicalPairSpaceID([]EntityID{b, a})
	if id1 != id2 {
		t.Fatalf("pair-space id depends on argument order: %q vs %q", id1, id2)
	}
	if id1 != SpaceID("@alice-@bob") {
		t.Fatalf("pair-space id = %q, want @alice-@bob", id1)
	}
}

func TestAppendMessage_CreatesLogWithoutNamedSpace(t *testing.T) {
	w := New()
	alice, bob := NewEntityID("alice"), NewEntityID("bob")
	w.Spawn(alice)
	w.Spawn(bob)

	pair := w.EnsurePairSpace([]EntityID{alice, bob})
	w.AppendMessage(pair, alice, "hi")

	if w.SpaceLogLen(pair) != 1 {
		t.Fatalf("SpaceLogLen = %d, want 1", w.SpaceLogLen(pair))
	}
	if w.IsMember(alice, pair) {
		t.Fatal("pair-spaces should never appear in the named-space membership map")
	}
}

func TestReadCursor_Idempotent(t *testing.T) {
	w := New()
	alice, bob := NewEntityID("alice"), NewEntityID("bob")
	w.Spawn(alice)
	w.Spawn(bob)
	pair := w.EnsurePairSpace([]EntityID{alice, bob})
	w.AppendMessage(pair, bob, "yo")

	msgs, total := w.MessagesSince(pair, w.ReadCursor(alice, pair))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 unread message, got %d", len(msgs))
	}
	w.SetReadCursor(alice, pair, total)

	msgs, _ = w.MessagesSince(pair, w.ReadCursor(alice, pair))
	if len(msgs) != 0 {
		t.Fatalf("expected 0 unread messages on second read, got %d", len(msgs))
	}
}

func TestWake_OneShot(t *testing.T) {
	w := New()
	alice := NewEntityID("alice")
	w.Spawn(alice)
	w.SetWake(alice, nil, "hi-me")

	if _, ok := w.GetWake(alice); !ok {
		t.Fatal("expected a wake registration to be present")
	}
	w.ClearWake(alice)
	if _, ok := w.GetWake(alice); ok {
		t.Fatal("expected the wake registration to be absent after clearing")
	}
}

func TestAdvanceClock_TickBufferEmptyInvariant(t *testing.T) {
	w := New()
	w.RecordExecution(ExecutionRecord{Executor: "@alice", Command: "\\echo hi---", Output: "Echo: hi"})

	if err := w.CheckInvariants(); err == nil {
		t.Fatal("expected invariant failure: tick_buffer is non-empty")
	}

	records := w.FlushTickBuffer()
	if len(records) != 1 {
		t.Fatalf("FlushTickBuffer returned %d records, want 1", len(records))
	}
	before := w.Clock()
	after := w.AdvanceClock()
	if after != before+1 {
		t.Fatalf("AdvanceClock: %d -> %d, want +1", before, after)
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated after flush+advance: %v", err)
	}
}
