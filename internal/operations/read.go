package operations

import (
	"strings"

	"github.com/mutantcacti/o/internal/grammar"
	"github.com/mutantcacti/o/internal/world"
)

// Read implements "\read [@peer...] [#space...] ---": with no filter
// arguments it flushes all unread messages across every space the
// executor belongs to; with filters it restricts to the named/pair
// spaces given. Every space scanned has its read cursor advanced to
// the log's current length, regardless of whether new messages were
// found.
func Read(cmd *grammar.Command, oc *Context) string {
	spaces := filterSpaces(cmd, oc)
	if spaces == nil {
		return "ERROR: no subscribed spaces"
	}

	var lines []string
	for _, s := range spaces {
		cursor := oc.World.ReadCursor(oc.Executor, s)
		msgs, total := oc.World.MessagesSince(s, cursor)
		for _, m := range msgs {
			lines = append(lines, string(m.Sender)+": "+m.Content)
		}
		oc.World.SetReadCursor(oc.Executor, s, total)
	}

	if oc.Store != nil {
		if err := oc.Store.WriteReadSnapshot(oc.Executor, oc.World.ReadCursorSnapshot(oc.Executor)); err != nil {
			return "ERROR: persisting read cursor: " + err.Error()
		}
	}

	if len(lines) == 0 {
		return "No new messages"
	}
	return strings.Join(lines, "\n")
}

// Incoming implements "\incoming ---": reports whether any space the
// executor belongs to has unread messages, then advances the cursor
// to the current total regardless (so a subsequent call only reports
// messages that arrived after this one).
func Incoming(cmd *grammar.Command, oc *Context) string {
	spaces := oc.World.EntitySpaces(oc.Executor)
	hasNew := false
	for _, s := range spaces {
		cursor := oc.World.ReadCursor(oc.Executor, s)
		total := oc.World.SpaceLogLen(s)
		if total > cursor {
			hasNew = true
		}
		oc.World.SetReadCursor(oc.Executor, s, total)
	}

	if oc.Store != nil {
		if err := oc.Store.WriteIncomingSnapshot(oc.Executor, oc.World.ReadCursorSnapshot(oc.Executor)); err != nil {
			return "ERROR: persisting incoming cursor: " + err.Error()
		}
	}

	if hasNew {
		return "true"
	}
	return "false"
}

// filterSpaces resolves the spaces "\read" should scan: the explicit
// @peer/#space filters in cmd's content if any, otherwise every space
// the executor belongs to. Returns nil if there is nothing to scan.
func filterSpaces(cmd *grammar.Command, oc *Context) []world.SpaceID {
	entities := entityRefs(cmd.Content)
	named := spaceRefs(cmd.Content)
	if len(entities) == 0 && len(named) == 0 {
		spaces := oc.World.EntitySpaces(oc.Executor)
		if len(spaces) == 0 {
			return nil
		}
		return spaces
	}

	var out []world.SpaceID
	for _, e := range entities {
		out = append(out, world.CanonicalPairSpaceID([]world.EntityID{oc.Executor, e}))
	}
	out = append(out, named...)
	return out
}
