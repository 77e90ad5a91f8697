// Package provider defines the inference provider interfaces the
// scheduler (internal/body) consumes: a stateless thinker and a
// channel substrate, independent capabilities a concrete provider may
// implement either or both of. The core never assumes anything about
// what is on the other end of either interface —
// concrete implementations (internal/provider/wschannel,
// internal/provider/mqttchannel, internal/provider/httpthinker) are
// reference shims demonstrating the contract, not inference
// intelligence.
package provider

import (
	"context"
	"time"

	"github.com/mutantcacti/o/internal/world"
)

// Context is the snapshot the scheduler builds for a wake-triggered
// entity's think-call: the current tick, the spaces it belongs to, and
// why it woke up.
type Context struct {
	Clock      int
	Spaces     []world.SpaceID
	WakeReason string
}

// Thinker is the stateless provider capability: given an entity and a
// context snapshot, produce the next command string, or report none.
// Implementations must be cancellation-aware and retain no per-entity
// memory across calls.
type Thinker interface {
	Think(ctx context.Context, entity world.EntityID, snapshot Context) (command string, ok bool, err error)
}

// OutputRecord is what the scheduler hands a channel substrate's
// WriteOutput after dispatching one execution.
type OutputRecord struct {
	Clock     int
	Command   string
	Output    string
	Timestamp time.Time
}

// ChannelSubstrate is the provider capability serving externally-
// initiated (human) executions. ReadCommand must be non-blocking — it returns
// ok=false when nothing is pending, never blocking the tick.
// WriteOutput must return promptly even with no attached consumer
// (buffer or drop-with-logging); it must never block the scheduler
// indefinitely.
type ChannelSubstrate interface {
	ReadCommand(ctx context.Context, entity world.EntityID) (command string, ok bool, err error)
	WriteOutput(ctx context.Context, entity world.EntityID, record OutputRecord) error
	EnsureChannels(ctx context.Context, entity world.EntityID) error
}
