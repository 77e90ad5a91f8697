// Package operations implements the runtime operations: the side-effecting
// handlers dispatched by command name (echo, up, spawn, name, say,
// listen, read, incoming, wake, publish, stdout, eval). Every operation
// shares the same signature: it receives the
// parsed Command, the executor, and a Context bundling the
// collaborators an operation might need (World, the persistence Store,
// and callback interfaces into the evaluator/provider layer that
// internal/mind wires up). Operations never panic and never
// return a Go error for a user-visible failure — they return a string,
// prefixed "ERROR: " on failure, so the scheduler can still log the
// execution.
package operations

import (
	"context"
	"strings"

	"github.com/mutantcacti/o/internal/grammar"
	"github.com/mutantcacti/o/internal/world"
)

// Evaluator is the subset of internal/evaluator.Evaluator's behavior
// the "eval" operation needs.
type Evaluator interface {
	Evaluate(ctx context.Context, expr *grammar.BoolExpr, executor world.EntityID) bool
}

// ProviderHooks is the channel-substrate setup hook "spawn" calls once
// per newly registered entity.
type ProviderHooks interface {
	EnsureChannels(ctx context.Context, entity world.EntityID) error
}

// Context bundles everything an operation may need beyond the parsed
// Command and executor. Callers (internal/mind) construct one per
// dispatch.
type Context struct {
	Ctx        context.Context
	Executor   world.EntityID
	World      *world.World
	Store      *world.Store
	Evaluator  Evaluator
	Hooks      ProviderHooks
	OutputRoot string
}

// Func is the signature every operation implements.
type Func func(cmd *grammar.Command, oc *Context) string

// Registry maps a command name to its handler.
type Registry map[string]Func

// Default returns the closed, built-in set of operations. internal/mind uses this (possibly merged with
// additional entries) to build its dispatch table.
func Default() Registry {
	return Registry{
		"echo":     Echo,
		"up":       Up,
		"spawn":    Spawn,
		"name":     Name,
		"say":      Say,
		"listen":   Listen,
		"read":     Read,
		"incoming": Incoming,
		"wake":     Wake,
		"publish":  Publish,
		"stdout":   Stdout,
		"eval":     Eval,
	}
}

// textOf concatenates every Text node in content, in order, joined by
// nothing extra — callers that need word-splitting do it themselves.
func textOf(content []grammar.Node) string {
	var b strings.Builder
	for _, n := range content {
		if n.Kind == grammar.NodeText {
			b.WriteString(n.Text)
		}
	}
	return b.String()
}

// entityRefs returns the EntityID for every EntityRef node in content,
// in surface order.
func entityRefs(content []grammar.Node) []world.EntityID {
	var out []world.EntityID
	for _, n := range content {
		if n.Kind == grammar.NodeEntityRef {
			out = append(out, world.NewEntityID(n.Name))
		}
	}
	return out
}

// spaceRefs returns the SpaceID for every SpaceRef node in content, in
// surface order.
func spaceRefs(content []grammar.Node) []world.SpaceID {
	var out []world.SpaceID
	for _, n := range content {
		if n.Kind == grammar.NodeSpaceRef {
			out = append(out, world.NewSpaceID(n.Name))
		}
	}
	return out
}

// conditionOf returns the first ConditionNode's expression in content,
// if any.
func conditionOf(content []grammar.Node) *grammar.BoolExpr {
	for _, n := range content {
		if n.Kind == grammar.NodeCondition {
			return n.Expr
		}
	}
	return nil
}

// trailingTextAfterCondition returns the Text nodes that appear after
// the first ConditionNode, trimmed — used by "wake" to extract a
// self-prompt.
func trailingTextAfterCondition(content []grammar.Node) string {
	seen := false
	var b strings.Builder
	for _, n := range content {
		if n.Kind == grammar.NodeCondition {
			seen = true
			continue
		}
		if seen && n.Kind == grammar.NodeText {
			b.WriteString(n.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
