package operations

import (
	"strings"

	"github.com/mutantcacti/o/internal/grammar"
	"github.com/mutantcacti/o/internal/world"
)

// Say implements "\say @peer... #space... content ---": for each
// SpaceRef target the executor must already be a member; for each
// EntityRef target the message goes to the canonical pair-space of
// {executor} ∪ targets, created on first use but never added to
// World's named spaces.
func Say(cmd *grammar.Command, oc *Context) string {
	content := strings.TrimSpace(textOf(cmd.Content))
	if content == "" {
		return "ERROR: say requires non-empty content"
	}

	namedTargets := spaceRefs(cmd.Content)
	entityTargets := entityRefs(cmd.Content)
	if len(namedTargets) == 0 && len(entityTargets) == 0 {
		return "ERROR: say requires at least one target"
	}

	var destinations []world.SpaceID
	for _, s := range namedTargets {
		if !oc.World.IsMember(oc.Executor, s) {
			return "ERROR: " + string(oc.Executor) + " is not a member of " + string(s)
		}
		destinations = append(destinations, s)
	}
	if len(entityTargets) > 0 {
		members := append([]world.EntityID{oc.Executor}, entityTargets...)
		destinations = append(destinations, oc.World.EnsurePairSpace(members))
	}

	for _, dest := range destinations {
		msg := oc.World.AppendMessage(dest, oc.Executor, content)
		if oc.Store != nil {
			if err := oc.Store.AppendSpaceMessage(dest, msg); err != nil {
				return "ERROR: persisting message to " + string(dest) + ": " + err.Error()
			}
		}
	}

	names := make([]string, len(destinations))
	for i, d := range destinations {
		names[i] = string(d)
	}
	return "Said to " + strings.Join(names, ", ")
}
