package operations

import (
	"github.com/mutantcacti/o/internal/grammar"
)

// Wake implements "\wake ?(EXPR) self-prompt... ---": registers a
// one-shot wake condition for the executor, overwriting any prior
// registration. The self_prompt is any Text content following the
// ConditionNode.
func Wake(cmd *grammar.Command, oc *Context) string {
	cond := conditionOf(cmd.Content)
	if cond == nil {
		return "ERROR: wake requires a ?(...) condition"
	}
	selfPrompt := trailingTextAfterCondition(cmd.Content)

	oc.World.SetWake(oc.Executor, cond, selfPrompt)

	if oc.Store != nil {
		entry, _ := oc.World.GetWake(oc.Executor)
		if err := oc.Store.WriteWakeSnapshot(oc.Executor, entry); err != nil {
			return "ERROR: persisting wake registration: " + err.Error()
		}
	}

	return "Wake registered"
}
