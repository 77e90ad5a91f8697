package evaluator

import (
	"context"
	"testing"

	"github.com/mutantcacti/o/internal/grammar"
	"github.com/mutantcacti/o/internal/world"
)

// recordingDispatcher counts calls per command name so tests can
// assert short-circuit evaluation never invokes the dispatcher.
type recordingDispatcher struct {
	calls  map[string]int
	result string
}

func newRecordingDispatcher(result string) *recordingDispatcher {
	return &recordingDispatcher{calls: make(map[string]int), result: result}
}

func (d *recordingDispatcher) DispatchCommand(_ context.Context, cmd *grammar.Command, _ world.EntityID) string {
	d.calls[cmd.Name]++
	return d.result
}

func mustParse(t *testing.T, text string) *grammar.Command {
	t.Helper()
	cmd, err := grammar.Parse(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	return cmd
}

func conditionExpr(t *testing.T, text string) *grammar.BoolExpr {
	t.Helper()
	cmd := mustParse(t, text)
	for _, n := range cmd.Content {
		if n.Kind == grammar.NodeCondition {
			return n.Expr
		}
	}
	t.Fatalf("no condition node in %q", text)
	return nil
}

func TestEvaluate_ShortCircuitOr(t *testing.T) {
	d := newRecordingDispatcher("true")
	e := New(d)
	expr := conditionExpr(t, `\eval ?(true or $(\never---)) ---`)

	if !e.Evaluate(context.Background(), expr, "@a") {
		t.Fatal("expected true")
	}
	if d.calls["never"] != 0 {
		t.Fatalf("dispatcher was invoked for the short-circuited right operand: %v", d.calls)
	}
}

func TestEvaluate_ShortCircuitAnd(t *testing.T) {
	d := newRecordingDispatcher("true")
	e := New(d)
	expr := conditionExpr(t, `\eval ?(false and $(\never---)) ---`)

	if e.Evaluate(context.Background(), expr, "@a") {
		t.Fatal("expected false")
	}
	if d.calls["never"] != 0 {
		t.Fatalf("dispatcher was invoked for the short-circuited right operand: %v", d.calls)
	}
}

func TestEvaluate_QueryLeafCallsDispatcher(t *testing.T) {
	d := newRecordingDispatcher("true")
	e := New(d)
	expr := conditionExpr(t, `\eval ?($(\up---)) ---`)

	if !e.Evaluate(context.Background(), expr, "@a") {
		t.Fatal("expected true")
	}
	if d.calls["up"] != 1 {
		t.Fatalf("expected dispatcher called once for up, got %v", d.calls)
	}
}

func TestEvaluate_CompareNumeric(t *testing.T) {
	e := New(newRecordingDispatcher(""))
	expr := conditionExpr(t, `\eval ?(2 < 10) ---`)
	if !e.Evaluate(context.Background(), expr, "@a") {
		t.Fatal("expected 2 < 10 numerically")
	}
}

func TestEvaluate_CompareStringFallback(t *testing.T) {
	e := New(newRecordingDispatcher(""))
	expr := conditionExpr(t, `\eval ?(banana < apple) ---`)
	if e.Evaluate(context.Background(), expr, "@a") {
		t.Fatal("expected lexicographic 'banana' < 'apple' to be false")
	}
}

func TestEvaluate_Not(t *testing.T) {
	e := New(newRecordingDispatcher(""))
	expr := conditionExpr(t, `\eval ?(not true) ---`)
	if e.Evaluate(context.Background(), expr, "@a") {
		t.Fatal("expected not true = false")
	}
}

func TestEvaluate_CancelledContextIsFalse(t *testing.T) {
	d := newRecordingDispatcher("true")
	e := New(d)
	expr := conditionExpr(t, `\eval ?($(\up---)) ---`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if e.Evaluate(ctx, expr, "@a") {
		t.Fatal("expected cancelled query to evaluate false")
	}
	if d.calls["up"] != 0 {
		t.Fatal("dispatcher should not be invoked once context is cancelled")
	}
}
