// Package world holds the bipartite entities/spaces graph: named
// spaces and their members, per-space append-only message logs,
// per-entity subscriptions, read cursors, wake registrations, and the
// logical clock. It is pure data with invariant-preserving mutators;
// persistence to disk lives in store.go, and concurrency discipline is
// the caller's (internal/body serializes all mutation through the
// dispatcher, per the scheduler's concurrency model).
package world

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mutantcacti/o/internal/grammar"
)

// EntityID is an entity reference including its leading "@", e.g. "@alice".
type EntityID string

// SpaceID is a space reference: either a named space ("#room") or a
// canonical pair-space id ("@alice-@bob").
type SpaceID string

// NewEntityID builds an EntityID from a bare name (no leading "@").
func NewEntityID(name string) EntityID { return EntityID("@" + name) }

// NewSpaceID builds a SpaceID for a named space from a bare name (no
// leading "#").
func NewSpaceID(name string) SpaceID { return SpaceID("#" + name) }

// Name strips the leading sigil, for filenames and display.
func (e EntityID) Name() string { return strings.TrimPrefix(string(e), "@") }

// Name strips the leading sigil, for filenames and display. Pair-space
// ids have no sigil to strip and are returned unchanged.
func (s SpaceID) Name() string { return strings.TrimPrefix(string(s), "#") }

// Space is a named space: a display name and an explicit member set.
// Pair-spaces (created implicitly by say/listen) never appear here —
// see CanonicalPairSpaceID.
type Space struct {
	DisplayName string
	Members     map[EntityID]struct{}
}

// Message is one append to a space's log.
type Message struct {
	Sender    EntityID
	Content   string
	Tick      int
	Timestamp time.Time
}

// WakeEntry is a pending one-shot wake registration.
type WakeEntry struct {
	Condition  *grammar.BoolExpr
	SelfPrompt string
}

// ExecutionRecord is one dispatch outcome, buffered in TickBuffer until
// the tick is flushed.
type ExecutionRecord struct {
	Executor  EntityID
	Command   string
	Output    string
	RequestID string // ambient: correlates concurrent think-calls in logs
}

// World is the single authoritative in-memory graph. All exported
// methods lock internally; callers never need their own mutex.
type World struct {
	mu sync.Mutex

	spaces           map[SpaceID]*Space
	entitySpaces     map[EntityID]map[SpaceID]struct{}
	spaceLog         map[SpaceID][]Message
	subscriptions    map[EntityID]map[string]struct{}
	readCursor       map[EntityID]map[SpaceID]int
	wakeRegistration map[EntityID]*WakeEntry
	clock            int
	tickBuffer       []ExecutionRecord
}

// New returns an empty world at tick 0.
func New() *World {
	return &World{
		spaces:           make(map[SpaceID]*Space),
		entitySpaces:     make(map[EntityID]map[SpaceID]struct{}),
		spaceLog:         make(map[SpaceID][]Message),
		subscriptions:    make(map[EntityID]map[string]struct{}),
		readCursor:       make(map[EntityID]map[SpaceID]int),
		wakeRegistration: make(map[EntityID]*WakeEntry),
	}
}

// HasEntity reports whether e has been spawned.
func (w *World) HasEntity(e EntityID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entitySpaces[e]
	return ok
}

// AllEntities returns every spawned entity, in a stable (sorted) order.
// The scheduler uses this to know which entities have I/O channels to
// poll — World, not the provider, maintains the entity list.
func (w *World) AllEntities() []EntityID {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]EntityID, 0, len(w.entitySpaces))
	for e := range w.entitySpaces {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Spawn registers e in entitySpaces with an empty membership set. It is
// an error to spawn an entity that already exists.
func (w *World) Spawn(e EntityID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entitySpaces[e]; ok {
		return fmt.Errorf("entity %s already exists", e)
	}
	w.entitySpaces[e] = make(map[SpaceID]struct{})
	return nil
}

// addMembershipLocked links e and s in both directions. Caller holds w.mu.
func (w *World) addMembershipLocked(e EntityID, s SpaceID) {
	if w.entitySpaces[e] == nil {
		w.entitySpaces[e] = make(map[SpaceID]struct{})
	}
	w.entitySpaces[e][s] = struct{}{}
}

// SetSpaceMembers implements the "name" operation: creates or
// overwrites a named space with the given member set, and ensures each
// member's entitySpaces entry contains it. On overwrite, the space is
// removed from the entitySpaces entry of every former member that is
// not in the new set.
func (w *World) SetSpaceMembers(id SpaceID, members []EntityID) error {
	if len(members) == 0 {
		return fmt.Errorf("space %s must have at least one member", id)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	memberSet := make(map[EntityID]struct{}, len(members))
	for _, m := range members {
		if _, ok := w.entitySpaces[m]; !ok {
			return fmt.Errorf("member %s does not exist", m)
		}
		memberSet[m] = struct{}{}
	}

	if old, ok := w.spaces[id]; ok {
		for m := range old.Members {
			if _, keep := memberSet[m]; !keep {
				delete(w.entitySpaces[m], id)
			}
		}
	}
	w.spaces[id] = &Space{DisplayName: id.Name(), Members: memberSet}
	for m := range memberSet {
		w.addMembershipLocked(m, id)
	}
	return nil
}

// IsMember reports whether e is a member of the named space s.
// Pair-spaces have no explicit membership: the executor is implicitly a
// member.
func (w *World) IsMember(e EntityID, s SpaceID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, ok := w.spaces[s]
	if !ok {
		return false
	}
	_, ok = sp.Members[e]
	return ok
}

// CanonicalPairSpaceID returns the lexicographic concatenation of
// member entity refs joined by "-".
func CanonicalPairSpaceID(members []EntityID) SpaceID {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = string(m)
	}
	sort.Strings(names)
	return SpaceID(strings.Join(names, "-"))
}

// EnsurePairSpace makes sure every member's entitySpaces set contains
// the pair-space id, without adding the pair-space to w.spaces (it has
// no explicit membership set — see IsMember).
func (w *World) EnsurePairSpace(members []EntityID) SpaceID {
	id := CanonicalPairSpaceID(members)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range members {
		w.addMembershipLocked(m, id)
	}
	return id
}

// AppendMessage appends content from sender to space s's log, creating
// the log on first use. It does not touch w.spaces — callers are
// responsible for membership checks before calling this.
func (w *World) AppendMessage(s SpaceID, sender EntityID, content string) Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := Message{Sender: sender, Content: content, Tick: w.clock, Timestamp: time.Now().UTC()}
	w.spaceLog[s] = append(w.spaceLog[s], msg)
	return msg
}

// RestoreSpaceLog replaces space s's in-memory log with msgs. Used by
// Store.RestoreWorld when replaying persisted state at startup, before
// any cursors referencing the log are restored.
func (w *World) RestoreSpaceLog(s SpaceID, msgs []Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.spaceLog[s] = msgs
}

// SpaceLogLen returns the number of messages appended to s so far.
func (w *World) SpaceLogLen(s SpaceID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.spaceLog[s])
}

// Subscribe adds target ("@peer" or "#space") to executor's
// subscription set. If target is an entity ref, also ensures
// entitySpaces[executor] contains the pair-space id for {executor, peer}.
func (w *World) Subscribe(executor EntityID, target string) {
	w.mu.Lock()
	if w.subscriptions[executor] == nil {
		w.subscriptions[executor] = make(map[string]struct{})
	}
	w.subscriptions[executor][target] = struct{}{}
	w.mu.Unlock()

	if strings.HasPrefix(target, "@") {
		w.EnsurePairSpace([]EntityID{executor, EntityID(target)})
	}
}

// Subscriptions returns a sorted snapshot of executor's subscription targets.
func (w *World) Subscriptions(executor EntityID) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.subscriptions[executor]))
	for t := range w.subscriptions[executor] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// EntitySpaces returns a sorted snapshot of the spaces e belongs to
// (named spaces and pair-spaces alike).
func (w *World) EntitySpaces(e EntityID) []SpaceID {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]SpaceID, 0, len(w.entitySpaces[e]))
	for s := range w.entitySpaces[e] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReadCursor returns read_cursor[e][s], defaulting to 0.
func (w *World) ReadCursor(e EntityID, s SpaceID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readCursor[e][s]
}

// SetReadCursor sets read_cursor[e][s] = n.
func (w *World) SetReadCursor(e EntityID, s SpaceID, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readCursor[e] == nil {
		w.readCursor[e] = make(map[SpaceID]int)
	}
	w.readCursor[e][s] = n
}

// ReadCursorSnapshot returns a copy of read_cursor[e] for persistence.
func (w *World) ReadCursorSnapshot(e EntityID) map[SpaceID]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[SpaceID]int, len(w.readCursor[e]))
	for s, n := range w.readCursor[e] {
		out[s] = n
	}
	return out
}

// MessagesSince returns the messages in space s at or after index
// cursor, along with the log's new length.
func (w *World) MessagesSince(s SpaceID, cursor int) ([]Message, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	log := w.spaceLog[s]
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(log) {
		return nil, len(log)
	}
	out := make([]Message, len(log)-cursor)
	copy(out, log[cursor:])
	return out, len(log)
}

// Tail returns up to n most recent messages in space s.
func (w *World) Tail(s SpaceID, n int) []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	log := w.spaceLog[s]
	if n <= 0 || len(log) == 0 {
		return nil
	}
	start := len(log) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(log)-start)
	copy(out, log[start:])
	return out
}

// SetWake overwrites executor's pending wake registration.
func (w *World) SetWake(executor EntityID, cond *grammar.BoolExpr, selfPrompt string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wakeRegistration[executor] = &WakeEntry{Condition: cond, SelfPrompt: selfPrompt}
}

// GetWake returns executor's wake registration, if any.
func (w *World) GetWake(executor EntityID) (*WakeEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.wakeRegistration[executor]
	return entry, ok
}

// ClearWake consumes (removes) executor's wake registration.
func (w *World) ClearWake(executor EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.wakeRegistration, executor)
}

// WakeReadyEntities returns the entities that currently hold a wake
// registration, in a stable (sorted) order. This only reports who is
// registered — evaluating whether the registration actually fires is
// internal/evaluator's job, invoked by internal/body's wake helper.
func (w *World) WakeReadyEntities() []EntityID {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]EntityID, 0, len(w.wakeRegistration))
	for e := range w.wakeRegistration {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RecordExecution appends rec to the current tick's buffer.
func (w *World) RecordExecution(rec ExecutionRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tickBuffer = append(w.tickBuffer, rec)
}

// FlushTickBuffer returns and clears the current tick's execution
// records.
func (w *World) FlushTickBuffer() []ExecutionRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	records := w.tickBuffer
	w.tickBuffer = nil
	return records
}

// Clock returns the current logical tick.
func (w *World) Clock() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clock
}

// SetClock restores the logical clock to n, used when resuming from
// persisted tick logs so new executions never reuse an already-
// recorded tick number.
func (w *World) SetClock(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clock = n
}

// AdvanceClock increments the logical clock and returns the new value.
// Callers must flush tickBuffer first — CheckInvariants enforces this.
func (w *World) AdvanceClock() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clock++
	return w.clock
}

// CheckInvariants validates the structural invariants that must hold between
// ticks. Intended for use in tests, not as a runtime recovery mechanism.
func (w *World) CheckInvariants() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for sid, sp := range w.spaces {
		for e := range sp.Members {
			if _, ok := w.entitySpaces[e][sid]; !ok {
				return fmt.Errorf("invariant: %s is a member of %s but entitySpaces disagrees", e, sid)
			}
		}
	}
	for e, spaces := range w.entitySpaces {
		for sid := range spaces {
			sp, ok := w.spaces[sid]
			if !ok {
				continue // pair-space: no explicit membership set to check against
			}
			if _, ok := sp.Members[e]; !ok {
				return fmt.Errorf("invariant: entitySpaces says %s is in %s but space disagrees", e, sid)
			}
		}
	}
	for e, cursors := range w.readCursor {
		for sid, k := range cursors {
			if k > len(w.spaceLog[sid]) {
				return fmt.Errorf("invariant: cursor[%s][%s]=%d exceeds log length %d", e, sid, k, len(w.spaceLog[sid]))
			}
		}
	}
	if len(w.tickBuffer) != 0 {
		return fmt.Errorf("invariant: tick_buffer not empty between ticks (%d records)", len(w.tickBuffer))
	}
	return nil
}
