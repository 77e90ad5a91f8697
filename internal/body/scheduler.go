// Package body implements the tick scheduler: the autonomous tick loop
// that wakes ready entities, asks providers for commands, dispatches
// them, persists the per-tick execution log, and advances the logical
// clock. It is the only component that mutates World outside of
// operations invoked through the dispatcher it drives.
package body

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mutantcacti/o/internal/evaluator"
	"github.com/mutantcacti/o/internal/mind"
	"github.com/mutantcacti/o/internal/provider"
	"github.com/mutantcacti/o/internal/world"
)

// watchdogTimeout bounds how long a cancelled Run waits for the
// in-flight tick to finish before forcibly returning.
const watchdogTimeout = 5 * time.Second

// Scheduler owns the logical clock and drives one tick at a time.
type Scheduler struct {
	World     *world.World
	Store     *world.Store
	Mind      *mind.Mind
	Evaluator *evaluator.Evaluator

	Thinker  provider.Thinker
	Channel  provider.ChannelSubstrate
	TickWait time.Duration
	MaxTicks int // 0 means run forever

	log *slog.Logger
}

// New builds a Scheduler. thinker and channel may be nil: a Scheduler
// with neither still runs ticks, it simply never has any wake- or
// externally-triggered work to dispatch.
func New(w *world.World, store *world.Store, m *mind.Mind, eval *evaluator.Evaluator, thinker provider.Thinker, channel provider.ChannelSubstrate, tickWait time.Duration, maxTicks int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		World: w, Store: store, Mind: m, Evaluator: eval,
		Thinker: thinker, Channel: channel, TickWait: tickWait, MaxTicks: maxTicks,
		log: logger,
	}
}

// pendingExecution is one command scheduled for dispatch within a
// tick, whether it came from a firing wake (think-triggered) or an
// external channel (human-initiated). A failed think-call arrives with
// resolved=true and its error string as the output: the failure is
// recorded as a single execution rather than dispatched as command
// text.
type pendingExecution struct {
	executor     world.EntityID
	command      string
	output       string
	resolved     bool
	fromExternal bool
}

// Run repeats Tick until ctx is cancelled or MaxTicks is reached.
// Cancellation is honored between ticks: a signal mid-tick lets the
// current tick finish before Run returns. If the in-flight tick has
// not finished within watchdogTimeout of cancellation, Run returns
// anyway rather than blocking forever.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if s.MaxTicks > 0 && s.World.Clock() >= s.MaxTicks {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		done := make(chan error, 1)
		tickStart := time.Now()
		go func() { done <- s.Tick(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			select {
			case err := <-done:
				if err != nil {
					return err
				}
			case <-time.After(watchdogTimeout):
				s.log.Warn("body: watchdog forced shutdown mid-tick")
			}
			return nil
		}

		if wait := s.TickWait - time.Since(tickStart); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Tick performs one full iteration: select wakers, read external
// inputs, think, dispatch, persist, advance. Pacing is Run's concern. It never returns an error for a provider
// or operation failure — only a tick-log persistence
// failure propagates.
func (s *Scheduler) Tick(ctx context.Context) error {
	clock := s.World.Clock()
	pending := s.selectWakers(ctx)
	pending = append(pending, s.readExternalInputs(ctx)...)
	pending = s.think(ctx, pending)

	for _, p := range pending {
		requestID := uuid.NewString()
		output := p.output
		if !p.resolved {
			output = s.Mind.Dispatch(ctx, p.command, p.executor)
		}
		s.World.RecordExecution(world.ExecutionRecord{
			Executor: p.executor, Command: p.command, Output: output, RequestID: requestID,
		})
		if s.Channel != nil {
			rec := provider.OutputRecord{Clock: clock, Command: p.command, Output: output, Timestamp: time.Now().UTC()}
			if err := s.Channel.WriteOutput(ctx, p.executor, rec); err != nil {
				s.log.Warn("body: write_output failed", "entity", p.executor, "error", err)
			}
		}
	}

	records := s.World.FlushTickBuffer()
	if len(records) > 0 {
		if err := s.Store.PersistTick(clock, records); err != nil {
			return err
		}
	}
	s.World.AdvanceClock()
	return nil
}

// selectWakers evaluates every entity holding a wake registration and
// returns the ones that fired, with their self-prompt-plus-messages
// digest queued as the "command" a stateless thinker is about to
// resolve.
func (s *Scheduler) selectWakers(ctx context.Context) []pendingExecution {
	if s.Evaluator == nil {
		return nil
	}
	var fired []pendingExecution
	for _, e := range s.World.WakeReadyEntities() {
		ok, prompt := s.Evaluator.CheckWake(ctx, e, s.World)
		if !ok {
			continue
		}
		if s.Store != nil {
			if err := s.Store.ClearWakeSnapshot(e); err != nil {
				s.log.Warn("body: clearing wake snapshot failed", "entity", e, "error", err)
			}
		}
		fired = append(fired, pendingExecution{executor: e, command: prompt})
	}
	return fired
}

// readExternalInputs polls the channel substrate for every known
// entity. ReadCommand is required to be non-blocking; a miss or an
// error is simply skipped.
func (s *Scheduler) readExternalInputs(ctx context.Context) []pendingExecution {
	if s.Channel == nil {
		return nil
	}
	var out []pendingExecution
	for _, e := range s.World.AllEntities() {
		cmd, ok, err := s.Channel.ReadCommand(ctx, e)
		if err != nil {
			s.log.Warn("body: read_command failed", "entity", e, "error", err)
			continue
		}
		if !ok {
			continue
		}
		out = append(out, pendingExecution{executor: e, command: cmd, fromExternal: true})
	}
	return out
}

// think asks the stateless thinker for each wake-triggered entity's
// next command, running the think-calls concurrently (they only read
// World via the context snapshot; their results are serialized back
// through dispatch). Externally-sourced pending executions already
// carry their command text and pass through unchanged.
func (s *Scheduler) think(ctx context.Context, pending []pendingExecution) []pendingExecution {
	if s.Thinker == nil {
		// No thinker configured: wake-triggered entities have nothing
		// to dispatch this tick, only externally-sourced ones do.
		out := pending[:0:0]
		for _, p := range pending {
			if p.fromExternal {
				out = append(out, p)
			}
		}
		return out
	}

	out := make([]pendingExecution, 0, len(pending))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range pending {
		if p.fromExternal {
			mu.Lock()
			out = append(out, p)
			mu.Unlock()
			continue
		}
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot := provider.Context{
				Clock:      s.World.Clock(),
				Spaces:     s.World.EntitySpaces(p.executor),
				WakeReason: p.command,
			}
			cmd, ok, err := s.Thinker.Think(ctx, p.executor, snapshot)
			if err != nil {
				s.log.Warn("body: think failed", "entity", p.executor, "error", err)
				mu.Lock()
				out = append(out, pendingExecution{executor: p.executor, output: "ERROR: " + err.Error(), resolved: true})
				mu.Unlock()
				return
			}
			if !ok {
				return // "no command this tick"
			}
			mu.Lock()
			out = append(out, pendingExecution{executor: p.executor, command: cmd})
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// ExecuteNow runs commandText as executor synchronously, bypassing the
// wake-selection/external-read/think steps. Used for bootstrap and tests. It records the
// execution in the tick buffer but does not persist the tick log or
// advance the clock — callers that want those call FlushAndAdvance.
func (s *Scheduler) ExecuteNow(ctx context.Context, executor world.EntityID, commandText string) string {
	output := s.Mind.Dispatch(ctx, commandText, executor)
	s.World.RecordExecution(world.ExecutionRecord{Executor: executor, Command: commandText, Output: output})
	return output
}

// FlushAndAdvance persists the current tick buffer (if non-empty) and
// advances the clock, the durability step execute_now deliberately
// skips.
func (s *Scheduler) FlushAndAdvance(ctx context.Context) error {
	clock := s.World.Clock()
	records := s.World.FlushTickBuffer()
	if len(records) > 0 {
		if err := s.Store.PersistTick(clock, records); err != nil {
			return err
		}
	}
	s.World.AdvanceClock()
	return nil
}
