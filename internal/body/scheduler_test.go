package body

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mutantcacti/o/internal/evaluator"
	"github.com/mutantcacti/o/internal/grammar"
	"github.com/mutantcacti/o/internal/mind"
	"github.com/mutantcacti/o/internal/provider"
	"github.com/mutantcacti/o/internal/world"
)

// stubThinker always returns a fixed command for any entity.
type stubThinker struct{ command string }

func (t stubThinker) Think(_ context.Context, _ world.EntityID, _ provider.Context) (string, bool, error) {
	if t.command == "" {
		return "", false, nil
	}
	return t.command, true, nil
}

func newTestScheduler(t *testing.T, thinker provider.Thinker) (*Scheduler, *world.World) {
	t.Helper()
	w := world.New()
	store, err := world.NewStore(t.TempDir(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	m := mind.New(w, store, t.TempDir())
	eval := evaluator.New(m)
	s := New(w, store, m, eval, thinker, nil, time.Millisecond, 0, nil)
	return s, w
}

func upCondition(t *testing.T) *grammar.BoolExpr {
	t.Helper()
	cmd, err := grammar.Parse(`\eval ?($(\up---)) ---`)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range cmd.Content {
		if n.Kind == grammar.NodeCondition {
			return n.Expr
		}
	}
	t.Fatal("no condition node")
	return nil
}

func TestTick_WakeFiresAndDispatches(t *testing.T) {
	s, w := newTestScheduler(t, stubThinker{command: `\echo woke ---`})
	alice := world.NewEntityID("alice")
	w.Spawn(alice)
	w.SetWake(alice, upCondition(t), "wake now")

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if w.Clock() != 1 {
		t.Fatalf("expected clock to advance to 1, got %d", w.Clock())
	}
	if _, ok := w.GetWake(alice); ok {
		t.Fatal("expected wake registration consumed after firing")
	}
}

func TestTick_NoWakersNoOp(t *testing.T) {
	s, w := newTestScheduler(t, stubThinker{})
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if w.Clock() != 1 {
		t.Fatalf("expected clock to still advance even with nothing dispatched, got %d", w.Clock())
	}
}

func TestExecuteNow_DoesNotAdvanceClock(t *testing.T) {
	s, w := newTestScheduler(t, nil)
	alice := world.NewEntityID("alice")
	w.Spawn(alice)

	out := s.ExecuteNow(context.Background(), alice, `\echo hi ---`)
	if out != "Echo: hi" {
		t.Fatalf("got %q", out)
	}
	if w.Clock() != 0 {
		t.Fatalf("expected clock unchanged by ExecuteNow, got %d", w.Clock())
	}

	if err := s.FlushAndAdvance(context.Background()); err != nil {
		t.Fatalf("FlushAndAdvance: %v", err)
	}
	if w.Clock() != 1 {
		t.Fatalf("expected clock to advance after FlushAndAdvance, got %d", w.Clock())
	}
}

// failingThinker simulates a provider outage.
type failingThinker struct{}

func (failingThinker) Think(_ context.Context, _ world.EntityID, _ provider.Context) (string, bool, error) {
	return "", false, context.DeadlineExceeded
}

func TestTick_ThinkFailureRecordedAsErrorExecution(t *testing.T) {
	stateDir := t.TempDir()
	w := world.New()
	store, err := world.NewStore(stateDir, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	m := mind.New(w, store, t.TempDir())
	s := New(w, store, m, evaluator.New(m), failingThinker{}, nil, time.Millisecond, 0, nil)

	alice := world.NewEntityID("alice")
	w.Spawn(alice)
	w.SetWake(alice, upCondition(t), "wake now")

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// The failure must not abort the tick, and the persisted record's
	// output carries the error string rather than a re-dispatched
	// parse failure of the error text.
	data, err := os.ReadFile(filepath.Join(stateDir, "logs", "log_0.json"))
	if err != nil {
		t.Fatalf("reading tick log: %v", err)
	}
	var file struct {
		Executions []struct {
			Executor string `json:"executor"`
			Command  string `json:"command"`
			Output   string `json:"output"`
		} `json:"executions"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("unmarshaling tick log: %v", err)
	}
	if len(file.Executions) != 1 {
		t.Fatalf("expected one execution record, got %d", len(file.Executions))
	}
	if !strings.HasPrefix(file.Executions[0].Output, "ERROR:") {
		t.Fatalf("output = %q, want an ERROR-prefixed provider failure", file.Executions[0].Output)
	}
	if file.Executions[0].Command != "" {
		t.Fatalf("command = %q, want empty for a failed think-call", file.Executions[0].Command)
	}
}

func TestRun_HonorsMaxTicks(t *testing.T) {
	s, w := newTestScheduler(t, stubThinker{})
	s.MaxTicks = 3
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.Clock() != 3 {
		t.Fatalf("expected clock to stop at MaxTicks=3, got %d", w.Clock())
	}
}

func TestRun_CancellationStopsBetweenTicks(t *testing.T) {
	s, _ := newTestScheduler(t, stubThinker{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
