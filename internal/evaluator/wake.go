package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/mutantcacti/o/internal/world"
)

// messagesTailLimit bounds how many of each subscribed space's most
// recent messages are gathered into a firing wake's message digest.
const messagesTailLimit = 10

// CheckWake implements the wake-firing check the scheduler consults
// once per tick for every entity holding a registration:
//
//  1. No registration: not ready (callers should not call CheckWake at
//     all in that case — World.WakeReadyEntities only reports entities
//     that do hold one).
//  2. Evaluate the registered expression.
//  3. If true: consume the registration, gather up to 10 recent
//     messages per subscribed space, and return the self-prompt
//     followed by a "--- Messages ---" digest.
//  4. Otherwise, leave the registration in place and report not ready.
func (e *Evaluator) CheckWake(ctx context.Context, executor world.EntityID, w *world.World) (fired bool, prompt string) {
	entry, ok := w.GetWake(executor)
	if !ok {
		return false, ""
	}
	if !e.Evaluate(ctx, entry.Condition, executor) {
		return false, ""
	}

	w.ClearWake(executor)

	var lines []string
	for _, target := range w.Subscriptions(executor) {
		var space world.SpaceID
		if strings.HasPrefix(target, "@") {
			space = world.CanonicalPairSpaceID([]world.EntityID{executor, world.EntityID(target)})
		} else {
			space = world.SpaceID(target)
		}
		for _, m := range w.Tail(space, messagesTailLimit) {
			lines = append(lines, fmt.Sprintf("%s: %s", m.Sender, m.Content))
		}
	}

	prompt = entry.SelfPrompt
	if len(lines) > 0 {
		prompt = prompt + "\n--- Messages ---\n" + strings.Join(lines, "\n")
	}
	return true, prompt
}
