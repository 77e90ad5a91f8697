package world

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mutantcacti/o/internal/grammar"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "state"), filepath.Join(dir, "memory"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_PersistTick(t *testing.T) {
	s := newTestStore(t)
	records := []ExecutionRecord{{Executor: "@alice", Command: `\echo hi---`, Output: "Echo: hi"}}
	if err := s.PersistTick(3, records); err != nil {
		t.Fatalf("PersistTick: %v", err)
	}
	path := filepath.Join(s.stateDir, "logs", "log_3.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func TestStore_PersistTick_EmptySkipped(t *testing.T) {
	s := newTestStore(t)
	if err := s.PersistTick(1, nil); err != nil {
		t.Fatalf("PersistTick with no records: %v", err)
	}
	path := filepath.Join(s.stateDir, "logs", "log_1.json")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected no log file for an empty tick")
	}
}

func TestStore_AppendSpaceMessage_SameFileForPermutedTargets(t *testing.T) {
	s := newTestStore(t)
	alice, bob := EntityID("@alice"), EntityID("@bob")
	pair := CanonicalPairSpaceID([]EntityID{alice, bob})

	msg1 := Message{Sender: alice, Content: "hi", Tick: 0, Timestamp: time.Now().UTC()}
	if err := s.AppendSpaceMessage(pair, msg1); err != nil {
		t.Fatalf("AppendSpaceMessage: %v", err)
	}
	pairAgain := CanonicalPairSpaceID([]EntityID{bob, alice})
	msg2 := Message{Sender: bob, Content: "hey", Tick: 0, Timestamp: time.Now().UTC()}
	if err := s.AppendSpaceMessage(pairAgain, msg2); err != nil {
		t.Fatalf("AppendSpaceMessage: %v", err)
	}

	lines, err := readJSONLines(filepath.Join(s.memoryDir, "spaces", string(pair)+".jsonl"))
	if err != nil {
		t.Fatalf("readJSONLines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected both messages in the same file, got %d lines", len(lines))
	}
}

func TestStore_WakeSnapshot_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	entity := EntityID("@alice")
	cmd, err := grammar.Parse(`\up ---`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	expr := &grammar.BoolExpr{Kind: grammar.ExprLeaf, Leaf: &grammar.Node{Kind: grammar.NodeQuery, Query: cmd}}

	if err := s.WriteWakeSnapshot(entity, &WakeEntry{Condition: expr, SelfPrompt: "hi-me"}); err != nil {
		t.Fatalf("WriteWakeSnapshot: %v", err)
	}

	loaded, ok := s.LoadWakeSnapshot(entity)
	if !ok {
		t.Fatal("expected LoadWakeSnapshot to succeed")
	}
	if loaded.SelfPrompt != "hi-me" {
		t.Fatalf("SelfPrompt = %q, want hi-me", loaded.SelfPrompt)
	}
	if loaded.Condition.Kind != grammar.ExprLeaf || loaded.Condition.Leaf.Query.Name != "up" {
		t.Fatalf("Condition = %+v, want leaf query 'up'", loaded.Condition)
	}

	if err := s.ClearWakeSnapshot(entity); err != nil {
		t.Fatalf("ClearWakeSnapshot: %v", err)
	}
	if _, ok := s.LoadWakeSnapshot(entity); ok {
		t.Fatal("expected no wake snapshot after clearing")
	}
}

func TestStore_WakeSnapshot_MalformedTreatedAsAbsent(t *testing.T) {
	s := newTestStore(t)
	entity := EntityID("@alice")
	path := filepath.Join(s.memoryDir, "wake", string(entity)+".json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("writing malformed wake file: %v", err)
	}

	if _, ok := s.LoadWakeSnapshot(entity); ok {
		t.Fatal("expected a malformed wake snapshot to be treated as absent, not as present")
	}
}

func TestStore_ListenSnapshot(t *testing.T) {
	s := newTestStore(t)
	entity := EntityID("@alice")
	if err := s.WriteListenSnapshot(entity, []string{"#room", "@bob"}); err != nil {
		t.Fatalf("WriteListenSnapshot: %v", err)
	}
	path := filepath.Join(s.memoryDir, "listen", string(entity)+".json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func TestStore_RestoreWorld_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	alice, bob := EntityID("@alice"), EntityID("@bob")

	first := New()
	first.Spawn(alice)
	first.Spawn(bob)
	first.Subscribe(alice, string(bob))
	if err := s.WriteListenSnapshot(alice, first.Subscriptions(alice)); err != nil {
		t.Fatalf("WriteListenSnapshot: %v", err)
	}

	pair := CanonicalPairSpaceID([]EntityID{alice, bob})
	msg := first.AppendMessage(pair, bob, "yo")
	if err := s.AppendSpaceMessage(pair, msg); err != nil {
		t.Fatalf("AppendSpaceMessage: %v", err)
	}
	first.SetReadCursor(alice, pair, 1)
	if err := s.WriteReadSnapshot(alice, first.ReadCursorSnapshot(alice)); err != nil {
		t.Fatalf("WriteReadSnapshot: %v", err)
	}

	cmd, err := grammar.Parse(`\up ---`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	expr := &grammar.BoolExpr{Kind: grammar.ExprLeaf, Leaf: &grammar.Node{Kind: grammar.NodeQuery, Query: cmd}}
	if err := s.WriteWakeSnapshot(alice, &WakeEntry{Condition: expr, SelfPrompt: "hi-me"}); err != nil {
		t.Fatalf("WriteWakeSnapshot: %v", err)
	}

	if err := s.PersistTick(4, []ExecutionRecord{{Executor: alice, Command: `\up ---`, Output: "true"}}); err != nil {
		t.Fatalf("PersistTick: %v", err)
	}

	second := New()
	if err := s.RestoreWorld(second); err != nil {
		t.Fatalf("RestoreWorld: %v", err)
	}

	if !second.HasEntity(alice) {
		t.Fatal("expected @alice re-registered from her snapshots")
	}
	if second.SpaceLogLen(pair) != 1 {
		t.Fatalf("SpaceLogLen = %d, want 1", second.SpaceLogLen(pair))
	}
	if got := second.Subscriptions(alice); len(got) != 1 || got[0] != string(bob) {
		t.Fatalf("Subscriptions = %v, want [@bob]", got)
	}
	if second.ReadCursor(alice, pair) != 1 {
		t.Fatalf("ReadCursor = %d, want 1", second.ReadCursor(alice, pair))
	}
	if entry, ok := second.GetWake(alice); !ok || entry.SelfPrompt != "hi-me" {
		t.Fatalf("wake = %+v, %v, want restored registration", entry, ok)
	}
	if second.Clock() != 5 {
		t.Fatalf("Clock = %d, want 5 (one past the last persisted tick)", second.Clock())
	}
	if err := second.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated after restore: %v", err)
	}
}

func TestStore_RestoreWorld_CursorClampedToLog(t *testing.T) {
	s := newTestStore(t)
	alice := EntityID("@alice")

	// A cursor snapshot pointing past the (empty) persisted log must be
	// clamped, not restored verbatim.
	if err := s.WriteReadSnapshot(alice, map[SpaceID]int{"#room": 7}); err != nil {
		t.Fatalf("WriteReadSnapshot: %v", err)
	}

	w := New()
	if err := s.RestoreWorld(w); err != nil {
		t.Fatalf("RestoreWorld: %v", err)
	}
	if got := w.ReadCursor(alice, "#room"); got != 0 {
		t.Fatalf("ReadCursor = %d, want clamped to 0", got)
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated after restore: %v", err)
	}
}

func TestStore_StdoutAppendAndRead(t *testing.T) {
	s := newTestStore(t)
	entity := EntityID("@alice")
	entry := StdoutEntry{Tick: 1, Entity: entity, Content: "hello", Timestamp: time.Now().UTC()}
	if err := s.AppendStdout(entry); err != nil {
		t.Fatalf("AppendStdout: %v", err)
	}
	entries, err := s.ReadStdout(entity)
	if err != nil {
		t.Fatalf("ReadStdout: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "hello" {
		t.Fatalf("entries = %+v, want one entry with content 'hello'", entries)
	}

	path := filepath.Join(s.memoryDir, "stdout", entity.Name()+".jsonl")
	if filepath.Base(path) != "alice.jsonl" {
		t.Fatalf("stdout filename = %q, want alice.jsonl (no '@')", filepath.Base(path))
	}
}
