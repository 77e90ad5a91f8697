package operations

import (
	"strings"

	"github.com/mutantcacti/o/internal/grammar"
)

// Listen implements "\listen @peer... #space... ---": adds each target
// to the executor's subscription set (World.Subscribe handles ensuring
// pair-space membership for @peer targets) and persists the resulting
// snapshot.
func Listen(cmd *grammar.Command, oc *Context) string {
	var targets []string
	for _, e := range entityRefs(cmd.Content) {
		targets = append(targets, string(e))
	}
	for _, s := range spaceRefs(cmd.Content) {
		targets = append(targets, string(s))
	}
	if len(targets) == 0 {
		return "ERROR: listen requires at least one @entity or #space target"
	}

	for _, t := range targets {
		oc.World.Subscribe(oc.Executor, t)
	}

	if oc.Store != nil {
		if err := oc.Store.WriteListenSnapshot(oc.Executor, oc.World.Subscriptions(oc.Executor)); err != nil {
			return "ERROR: persisting subscriptions: " + err.Error()
		}
	}

	return "Listening to " + strings.Join(targets, ", ")
}
