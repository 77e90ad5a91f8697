package operations

import "github.com/mutantcacti/o/internal/grammar"

// Eval implements "\eval ?(EXPR) ---": evaluates the condition via the
// Condition Evaluator and returns its literal "true"/"false" string.
// internal/body's wake-firing step calls the evaluator directly rather
// than through this operation, but this is the entry point available
// to command text.
func Eval(cmd *grammar.Command, oc *Context) string {
	cond := conditionOf(cmd.Content)
	if cond == nil {
		return "ERROR: eval requires a ?(...) condition"
	}
	if oc.Evaluator == nil {
		return "ERROR: no evaluator available"
	}
	if oc.Evaluator.Evaluate(oc.Ctx, cond, oc.Executor) {
		return "true"
	}
	return "false"
}
