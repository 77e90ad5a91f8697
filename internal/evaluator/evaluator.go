// Package evaluator implements the condition evaluator: short-
// circuit boolean evaluation over a parsed BoolExpr tree, including
// recursive dispatch of embedded query commands. It
// also implements the wake-firing check the scheduler (internal/body)
// consults once per tick for every entity holding a registration.
package evaluator

import (
	"context"
	"strconv"
	"strings"

	"github.com/mutantcacti/o/internal/grammar"
	"github.com/mutantcacti/o/internal/world"
)

// Dispatcher is the callback an Evaluator uses to resolve an embedded
// $(...) query: dispatch the stored command as executor and return its
// textual result. Implemented by internal/mind.Mind; defined here so
// this package has no dependency on its caller.
type Dispatcher interface {
	DispatchCommand(ctx context.Context, cmd *grammar.Command, executor world.EntityID) string
}

// Evaluator evaluates BoolExpr trees against a Dispatcher.
type Evaluator struct {
	dispatcher Dispatcher
}

// New returns an Evaluator that resolves embedded queries through d.
func New(d Dispatcher) *Evaluator {
	return &Evaluator{dispatcher: d}
}

// Evaluate walks expr and returns its boolean value: Or short-circuits on a true left operand, And on a
// false one, Not inverts, Compare parses both sides numerically and
// falls back to string comparison, and a leaf's truthiness comes from
// leafValue. Cancellation propagates via ctx; a cancelled context
// makes any query leaf evaluate to false rather than panicking or
// blocking.
func (e *Evaluator) Evaluate(ctx context.Context, expr *grammar.BoolExpr, executor world.EntityID) bool {
	if expr == nil {
		return false
	}
	switch expr.Kind {
	case grammar.ExprOr:
		if e.Evaluate(ctx, expr.Left, executor) {
			return true
		}
		return e.Evaluate(ctx, expr.Right, executor)
	case grammar.ExprAnd:
		if !e.Evaluate(ctx, expr.Left, executor) {
			return false
		}
		return e.Evaluate(ctx, expr.Right, executor)
	case grammar.ExprNot:
		return !e.Evaluate(ctx, expr.Left, executor)
	case grammar.ExprCompare:
		l := e.leafValue(ctx, expr.Left, executor)
		r := e.leafValue(ctx, expr.Right, executor)
		return compare(l, r, expr.Op)
	case grammar.ExprLeaf:
		return e.leafTruth(ctx, expr.Leaf, executor)
	default:
		return false
	}
}

// leafTruth evaluates a leaf node's boolean meaning: a Query's
// dispatch result or a Text node is true iff its trimmed, lower-cased
// value equals "true"; EntityRef/SpaceRef leaves are always false.
func (e *Evaluator) leafTruth(ctx context.Context, leaf *grammar.Node, executor world.EntityID) bool {
	if leaf == nil {
		return false
	}
	switch leaf.Kind {
	case grammar.NodeQuery:
		return isTrueString(e.dispatchQuery(ctx, leaf, executor))
	case grammar.NodeText:
		return isTrueString(leaf.Text)
	default:
		return false
	}
}

// leafValue returns a comparable leaf can resolve for a compare
// expression, whether the leaf sits directly under Compare or is
// itself a nested BoolExpr wrapping a single leaf (from a parenthesized
// or ?(...)-wrapped atom).
func (e *Evaluator) leafValue(ctx context.Context, expr *grammar.BoolExpr, executor world.EntityID) string {
	if expr == nil {
		return ""
	}
	if expr.Kind != grammar.ExprLeaf {
		if e.Evaluate(ctx, expr, executor) {
			return "true"
		}
		return "false"
	}
	leaf := expr.Leaf
	if leaf == nil {
		return ""
	}
	switch leaf.Kind {
	case grammar.NodeQuery:
		return e.dispatchQuery(ctx, leaf, executor)
	case grammar.NodeText:
		return leaf.Text
	case grammar.NodeEntityRef:
		return leaf.EntityRef()
	case grammar.NodeSpaceRef:
		return leaf.SpaceRef()
	default:
		return ""
	}
}

// dispatchQuery reconstructs nothing — it hands the already-parsed
// query command straight to the Dispatcher; nothing is re-serialized to
// command text and re-parsed. A cancelled context or a nil dispatcher resolves
// to an empty string, which isTrueString reports as false.
func (e *Evaluator) dispatchQuery(ctx context.Context, leaf *grammar.Node, executor world.EntityID) string {
	if leaf.Query == nil || e.dispatcher == nil {
		return ""
	}
	select {
	case <-ctx.Done():
		return ""
	default:
	}
	return e.dispatcher.DispatchCommand(ctx, leaf.Query, executor)
}

func isTrueString(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// compare implements Compare's semantics: if both sides parse as
// numbers, compare numerically; otherwise compare lexicographically as
// strings.
func compare(l, r, op string) bool {
	lf, lerr := strconv.ParseFloat(l, 64)
	rf, rerr := strconv.ParseFloat(r, 64)
	if lerr == nil && rerr == nil {
		switch op {
		case "<":
			return lf < rf
		case ">":
			return lf > rf
		case "=":
			return lf == rf
		}
	}
	switch op {
	case "<":
		return l < r
	case ">":
		return l > r
	case "=":
		return l == r
	}
	return false
}
