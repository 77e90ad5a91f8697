// Package mind implements the command dispatcher: parse a command string,
// look up the operation by name, invoke it with an executor context.
// The dispatcher is stateless and reentrant — operations (notably the
// condition evaluator, via DispatchCommand) call back into it to
// resolve embedded queries, and no per-call state leaks between
// invocations.
package mind

import (
	"context"
	"fmt"

	"github.com/mutantcacti/o/internal/grammar"
	"github.com/mutantcacti/o/internal/operations"
	"github.com/mutantcacti/o/internal/world"
)

// Mind ties the parser, the operation registry, World, the persistence
// Store, the condition evaluator, and provider channel-setup hooks
// together into the single entry point the scheduler calls once per
// awake entity, per tick.
type Mind struct {
	World      *world.World
	Store      *world.Store
	Operations operations.Registry
	OutputRoot string

	evaluator operations.Evaluator
	hooks     operations.ProviderHooks
}

// Option configures optional Mind collaborators at construction time.
type Option func(*Mind)

// WithEvaluator wires the condition evaluator used by the "eval"
// operation. Without one, "eval" reports an error rather than panicking.
func WithEvaluator(e operations.Evaluator) Option {
	return func(m *Mind) { m.evaluator = e }
}

// WithProviderHooks wires the channel-setup hook "spawn" calls for each
// newly registered entity.
func WithProviderHooks(h operations.ProviderHooks) Option {
	return func(m *Mind) { m.hooks = h }
}

// SetEvaluator wires the condition evaluator after construction. Used
// by callers that must break the construction cycle between a Mind
// (which the evaluator dispatches queries through) and the evaluator
// itself (which "eval" needs): build the Mind first, construct the
// evaluator around it, then call SetEvaluator.
func (m *Mind) SetEvaluator(e operations.Evaluator) { m.evaluator = e }

// SetProviderHooks wires the channel-setup hook after construction,
// for callers that only know which channel substrate to use once the
// Mind already exists.
func (m *Mind) SetProviderHooks(h operations.ProviderHooks) { m.hooks = h }

// New builds a Mind over the given World and Store, with the built-in
// operation set, plus any Options.
func New(w *world.World, store *world.Store, outputRoot string, opts ...Option) *Mind {
	m := &Mind{
		World:      w,
		Store:      store,
		Operations: operations.Default(),
		OutputRoot: outputRoot,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dispatch parses command text and runs it as executor, returning the
// operation's textual result. Parse failures and unknown command names
// are reported as "ERROR: ..." strings rather than Go errors, so a
// caller always has something to log as the execution's output.
func (m *Mind) Dispatch(ctx context.Context, commandText string, executor world.EntityID) string {
	cmd, err := grammar.Parse(commandText)
	if err != nil {
		return "ERROR: " + err.Error()
	}
	return m.DispatchCommand(ctx, cmd, executor)
}

// DispatchCommand runs an already-parsed Command as executor. This is
// the entry point internal/evaluator uses to resolve embedded $(...)
// queries without re-serializing and re-parsing command text.
func (m *Mind) DispatchCommand(ctx context.Context, cmd *grammar.Command, executor world.EntityID) (result string) {
	op, ok := m.Operations[cmd.Name]
	if !ok {
		return fmt.Sprintf("ERROR: Unknown command '%s'", cmd.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("ERROR: %v", r)
		}
	}()

	oc := &operations.Context{
		Ctx:        ctx,
		Executor:   executor,
		World:      m.World,
		Store:      m.Store,
		Evaluator:  m.evaluator,
		Hooks:      m.hooks,
		OutputRoot: m.OutputRoot,
	}
	return op(cmd, oc)
}
